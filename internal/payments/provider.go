package payments

import (
	"context"

	"github.com/barbearia-galileu/booking-server/internal/model"
)

// ProviderPayment is the slice of a Mercado Pago payment the reconciler
// needs: enough to match an appointment and map the status.
type ProviderPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	PaymentMethodID   string
	PaymentTypeID     string
	Metadata          map[string]any
}

// Client fetches payments from the provider. The webhook carries only a
// payment id; everything else comes from this lookup.
type Client interface {
	GetPayment(ctx context.Context, paymentID string) (ProviderPayment, error)
}

// MapStatus folds the provider's status vocabulary into ours. Unknown
// statuses stay pending so a later delivery can still settle them.
func MapStatus(status string) model.PaymentStatus {
	switch status {
	case "approved", "accredited":
		return model.PaymentApproved
	case "rejected", "cancelled", "refunded", "charged_back":
		return model.PaymentRejected
	default:
		return model.PaymentPending
	}
}
