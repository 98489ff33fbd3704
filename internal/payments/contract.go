package payments

import (
	"context"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
)

// PaymentPatch updates the payment columns of one appointment. Confirm also
// promotes the appointment to CONFIRMED.
type PaymentPatch struct {
	Status      model.PaymentStatus
	MPPaymentID string
	Confirm     bool
	UpdatedAt   time.Time
}

type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	AppointmentByProviderPaymentID(ctx context.Context, mpPaymentID string) (model.Appointment, error)
	UpdatePayment(ctx context.Context, id string, patch PaymentPatch, evt *outbox.Event) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string, evt *outbox.Event) error
	InsertWebhookEvent(ctx context.Context, evt model.WebhookEvent) error
	FinishWebhookEvent(ctx context.Context, id string, status model.ProcessingStatus, errMessage string, at time.Time) error
}
