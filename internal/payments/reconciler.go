package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

const providerMercadoPago = "mercadopago"

var ErrNoProviderPayment = errors.New("appointment has no provider payment")

// Reconciler folds provider payment state back into appointments. Webhook
// deliveries are audited and deduplicated; duplicate deliveries are
// acknowledged without reprocessing.
type Reconciler struct {
	store  Store
	client Client
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(store Store, client Client, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, client: client, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// WebhookDelivery is one raw inbound notification as the handler saw it.
type WebhookDelivery struct {
	RequestID string
	Method    string
	Path      string
	Query     map[string]string
	Headers   map[string]string
	Body      []byte
}

type Outcome struct {
	PaymentID     string
	EventAction   string
	AppointmentID string
	Applied       bool
	Duplicate     bool
	Status        model.ProcessingStatus
}

// ProcessWebhook audits and applies one provider notification. It never
// returns an error for provider-side noise (unknown payment, unmatched
// appointment, duplicate delivery); only infrastructure failures propagate.
func (r *Reconciler) ProcessWebhook(ctx context.Context, d WebhookDelivery) (Outcome, error) {
	paymentID, eventType, action := parseDelivery(d)

	audit := model.WebhookEvent{
		ID:          uuid.NewString(),
		Provider:    providerMercadoPago,
		RequestID:   d.RequestID,
		Method:      d.Method,
		Path:        d.Path,
		Query:       d.Query,
		Headers:     d.Headers,
		Body:        d.Body,
		EventType:   eventType,
		EventAction: action,
		MPPaymentID: paymentID,
		CreatedAt:   r.now().UTC(),
	}

	if paymentID == "" {
		return r.finishIgnored(ctx, audit, "no payment id in delivery")
	}

	payment, err := r.client.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return r.finishIgnored(ctx, audit, "payment not found at provider")
		}
		return Outcome{}, err
	}
	audit.EventAction = eventAction(action, payment)

	if err := r.store.InsertWebhookEvent(ctx, audit); err != nil {
		if errors.Is(err, storage.ErrDuplicateEvent) {
			return Outcome{PaymentID: paymentID, EventAction: audit.EventAction, Duplicate: true}, nil
		}
		return Outcome{}, err
	}

	outcome, applyErr := r.apply(ctx, payment)
	outcome.PaymentID = paymentID
	outcome.EventAction = audit.EventAction

	status := model.ProcessingSuccess
	errMessage := ""
	switch {
	case applyErr != nil:
		status = model.ProcessingFailed
		errMessage = applyErr.Error()
	case outcome.AppointmentID == "":
		status = model.ProcessingIgnored
	}
	outcome.Status = status

	if err := r.store.FinishWebhookEvent(ctx, audit.ID, status, errMessage, r.now().UTC()); err != nil {
		r.logger.Error("finish webhook audit failed", "event_id", audit.ID, "err", err)
	}
	if applyErr != nil {
		return outcome, applyErr
	}
	return outcome, nil
}

// SyncAppointment re-fetches the provider payment for one appointment and
// applies the current status. Manual fallback for missed webhooks.
func (r *Reconciler) SyncAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	appt, err := r.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.MPPaymentID == "" {
		return model.Appointment{}, ErrNoProviderPayment
	}
	payment, err := r.client.GetPayment(ctx, appt.MPPaymentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if _, err := r.apply(ctx, payment); err != nil {
		return model.Appointment{}, err
	}
	return r.store.GetAppointment(ctx, appointmentID)
}

func (r *Reconciler) finishIgnored(ctx context.Context, audit model.WebhookEvent, reason string) (Outcome, error) {
	if err := r.store.InsertWebhookEvent(ctx, audit); err != nil {
		if errors.Is(err, storage.ErrDuplicateEvent) {
			return Outcome{PaymentID: audit.MPPaymentID, EventAction: audit.EventAction, Duplicate: true}, nil
		}
		return Outcome{}, err
	}
	if err := r.store.FinishWebhookEvent(ctx, audit.ID, model.ProcessingIgnored, reason, r.now().UTC()); err != nil {
		r.logger.Error("finish webhook audit failed", "event_id", audit.ID, "err", err)
	}
	return Outcome{PaymentID: audit.MPPaymentID, EventAction: audit.EventAction, Status: model.ProcessingIgnored}, nil
}

func (r *Reconciler) apply(ctx context.Context, payment ProviderPayment) (Outcome, error) {
	appt, err := r.resolveAppointment(ctx, payment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	out := Outcome{AppointmentID: appt.ID}
	mapped := MapStatus(payment.Status)
	now := r.now().UTC()

	switch mapped {
	case model.PaymentApproved:
		if appt.PaymentStatus == model.PaymentApproved {
			return out, nil
		}
		evt, err := confirmedEvent(appt, payment)
		if err != nil {
			return out, err
		}
		if _, err := r.store.UpdatePayment(ctx, appt.ID, PaymentPatch{
			Status:      model.PaymentApproved,
			MPPaymentID: payment.ID,
			Confirm:     true,
			UpdatedAt:   now,
		}, &evt); err != nil {
			return out, err
		}
		out.Applied = true

	case model.PaymentRejected:
		// A rejected card payment voids the provisional booking outright.
		// Pix and cash appointments keep their slot and are only flagged.
		if appt.PaymentMethod == model.PaymentCard &&
			appt.Status == model.StatusScheduled &&
			appt.PaymentStatus != model.PaymentApproved {
			evt, err := voidedEvent(appt, payment)
			if err != nil {
				return out, err
			}
			if err := r.store.DeleteAppointment(ctx, appt.ID, &evt); err != nil {
				return out, err
			}
			out.Applied = true
			return out, nil
		}
		if appt.PaymentStatus == model.PaymentRejected {
			return out, nil
		}
		if _, err := r.store.UpdatePayment(ctx, appt.ID, PaymentPatch{
			Status:      model.PaymentRejected,
			MPPaymentID: payment.ID,
			UpdatedAt:   now,
		}, nil); err != nil {
			return out, err
		}
		out.Applied = true

	default:
		if appt.PaymentStatus == model.PaymentApproved || appt.PaymentStatus == model.PaymentPending {
			return out, nil
		}
		if _, err := r.store.UpdatePayment(ctx, appt.ID, PaymentPatch{
			Status:      model.PaymentPending,
			MPPaymentID: payment.ID,
			UpdatedAt:   now,
		}, nil); err != nil {
			return out, err
		}
		out.Applied = true
	}
	return out, nil
}

// resolveAppointment matches a provider payment to an appointment: the
// appointment id planted in the payment metadata at checkout wins, then the
// external reference, then whichever appointment already stores this
// provider payment id.
func (r *Reconciler) resolveAppointment(ctx context.Context, payment ProviderPayment) (model.Appointment, error) {
	candidates := []string{metadataAppointmentID(payment.Metadata), payment.ExternalReference}
	for _, id := range candidates {
		if id == "" {
			continue
		}
		appt, err := r.store.GetAppointment(ctx, id)
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, err
		}
	}
	return r.store.AppointmentByProviderPaymentID(ctx, payment.ID)
}

// metadataAppointmentID digs the appointment id out of the payment metadata.
// Mercado Pago snake_cases metadata keys on some channels and echoes numbers
// back as floats, so both spellings and both shapes occur.
func metadataAppointmentID(meta map[string]any) string {
	for _, key := range []string{"appointment_id", "appointmentId"} {
		switch v := meta[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v > 0 && v == math.Trunc(v) {
				return strconv.FormatInt(int64(v), 10)
			}
		}
	}
	return ""
}

func parseDelivery(d WebhookDelivery) (paymentID, eventType, action string) {
	paymentID = d.Query["data.id"]
	if paymentID == "" {
		paymentID = d.Query["id"]
	}
	eventType = d.Query["type"]
	if eventType == "" {
		eventType = d.Query["topic"]
	}

	var body struct {
		Action string `json:"action"`
		Type   string `json:"type"`
		Data   struct {
			// Mercado Pago sends the id as a number or a string depending
			// on the delivery channel.
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if len(d.Body) > 0 && json.Unmarshal(d.Body, &body) == nil {
		if paymentID == "" {
			if id := strings.Trim(string(body.Data.ID), `"`); id != "null" {
				paymentID = id
			}
		}
		if eventType == "" {
			eventType = body.Type
		}
		action = body.Action
	}
	if action == "" {
		action = eventType
	}
	return paymentID, eventType, action
}

// eventAction is the dedupe key component: "action:status" plus the status
// detail when the provider sends one that adds information.
func eventAction(action string, payment ProviderPayment) string {
	key := action + ":" + payment.Status
	if payment.StatusDetail != "" && payment.StatusDetail != payment.Status {
		key += ":" + payment.StatusDetail
	}
	return key
}

func confirmedEvent(appt model.Appointment, payment ProviderPayment) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"mp_payment_id":  payment.ID,
		"payment_method": string(appt.PaymentMethod),
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentConfirmed,
		Payload:       payload,
	}, nil
}

func voidedEvent(appt model.Appointment, payment ProviderPayment) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"mp_payment_id":  payment.ID,
		"reason":         "payment_rejected",
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}, nil
}
