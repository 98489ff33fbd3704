package payments_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage/memory"
)

var testNow = time.Date(2026, 9, 14, 7, 0, 0, 0, time.UTC)

type fakeClient struct {
	payments map[string]payments.ProviderPayment
}

func (c *fakeClient) GetPayment(_ context.Context, paymentID string) (payments.ProviderPayment, error) {
	p, ok := c.payments[paymentID]
	if !ok {
		return payments.ProviderPayment{}, payments.ErrPaymentNotFound
	}
	return p, nil
}

func newTestReconciler(t *testing.T) (*payments.Reconciler, *booking.Service, *memory.Store, *fakeClient) {
	t.Helper()
	store := memory.NewStore()
	cal := schedule.New(schedule.Config{
		Location:        time.UTC,
		OpenHour:        8,
		CloseHour:       20,
		IntervalMinutes: 30,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bookingSvc := booking.NewService(store, cal, nil, logger).WithClock(func() time.Time { return testNow })
	client := &fakeClient{payments: map[string]payments.ProviderPayment{}}
	rec := payments.NewReconciler(store, client, logger).WithClock(func() time.Time { return testNow })
	return rec, bookingSvc, store, client
}

func bookWithPayment(t *testing.T, svc *booking.Service, method model.PaymentMethod, paymentID string, start time.Time) model.Appointment {
	t.Helper()
	appt, err := svc.Create(context.Background(), booking.Draft{
		CustomerName:  "João Silva",
		CustomerPhone: "11987654321",
		HaircutID:     "classic",
		StartTime:     start,
		PaymentMethod: method,
		MPPaymentID:   paymentID,
	})
	if err != nil {
		t.Fatalf("book with payment: %v", err)
	}
	return appt
}

func delivery(paymentID string) payments.WebhookDelivery {
	return payments.WebhookDelivery{
		Method: "POST",
		Path:   "/webhooks/mercadopago",
		Query:  map[string]string{"data.id": paymentID, "type": "payment"},
		Body:   []byte(`{"action":"payment.updated","type":"payment","data":{"id":"` + paymentID + `"}}`),
	}
}

func TestProcessWebhook_ApprovedConfirms(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentCard, "mp-1", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	client.payments["mp-1"] = payments.ProviderPayment{
		ID: "mp-1", Status: "approved", StatusDetail: "accredited", ExternalReference: appt.ID,
	}

	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-1"))
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Applied || outcome.AppointmentID != appt.ID {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.EventAction != "payment.updated:approved:accredited" {
		t.Fatalf("unexpected event action %q", outcome.EventAction)
	}

	updated, err := store.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != model.StatusConfirmed || updated.PaymentStatus != model.PaymentApproved {
		t.Fatalf("expected confirmed+approved, got %s %s", updated.Status, updated.PaymentStatus)
	}

	confirmed := 0
	for _, evt := range store.Events() {
		if evt.EventType == outbox.EventAppointmentConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Fatalf("expected 1 confirmed event, got %d", confirmed)
	}

	audits := store.WebhookEvents()
	if len(audits) != 1 || audits[0].ProcessingStatus != model.ProcessingSuccess {
		t.Fatalf("expected one SUCCESS audit row, got %+v", audits)
	}
}

func TestProcessWebhook_BodyOnlyNumericID(t *testing.T) {
	rec, svc, _, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentPix, "123456", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	client.payments["123456"] = payments.ProviderPayment{ID: "123456", Status: "approved", ExternalReference: appt.ID}

	// IPN-style delivery: no query parameters, numeric id in the body.
	outcome, err := rec.ProcessWebhook(ctx, payments.WebhookDelivery{
		Method: "POST",
		Path:   "/webhooks/mercadopago",
		Body:   []byte(`{"action":"payment.updated","type":"payment","data":{"id":123456}}`),
	})
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Applied || outcome.PaymentID != "123456" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.EventAction != "payment.updated:approved" {
		t.Fatalf("unexpected event action %q", outcome.EventAction)
	}
}

func TestProcessWebhook_DuplicateDelivery(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentCard, "mp-1", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	client.payments["mp-1"] = payments.ProviderPayment{ID: "mp-1", Status: "approved", ExternalReference: appt.ID}

	if _, err := rec.ProcessWebhook(ctx, delivery("mp-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-1"))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatalf("expected duplicate outcome, got %+v", outcome)
	}
	if audits := store.WebhookEvents(); len(audits) != 1 {
		t.Fatalf("expected a single audit row, got %d", len(audits))
	}
}

func TestProcessWebhook_RejectedCardVoidsBooking(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
	appt := bookWithPayment(t, svc, model.PaymentCard, "mp-1", start)
	client.payments["mp-1"] = payments.ProviderPayment{ID: "mp-1", Status: "rejected", ExternalReference: appt.ID}

	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-1"))
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected applied outcome, got %+v", outcome)
	}
	if _, err := store.GetAppointment(ctx, appt.ID); err == nil {
		t.Fatal("expected provisional card booking deleted")
	}

	// The slot is free again.
	if _, err := svc.Create(ctx, booking.Draft{
		CustomerName:  "Pedro Costa",
		CustomerPhone: "11912345678",
		HaircutID:     "classic",
		StartTime:     start,
	}); err != nil {
		t.Fatalf("expected freed slot bookable, got %v", err)
	}
}

func TestProcessWebhook_RejectedCardVoidsRescheduledBooking(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentCard, "mp-1", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))

	// A pending card booking is still reschedulable; the superseded row then
	// points at the replacement through the reschedule link.
	result, err := svc.Reschedule(ctx, appt.ID, "11987654321", time.Date(2026, 9, 14, 11, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	client.payments["mp-1"] = payments.ProviderPayment{ID: "mp-1", Status: "rejected", ExternalReference: result.New.ID}

	if _, err := rec.ProcessWebhook(ctx, delivery("mp-1")); err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if _, err := store.GetAppointment(ctx, result.New.ID); err == nil {
		t.Fatal("expected voided replacement deleted")
	}
	superseded, err := store.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get superseded: %v", err)
	}
	if superseded.RescheduledToID != "" {
		t.Fatalf("expected reschedule link detached, got %q", superseded.RescheduledToID)
	}
}

func TestProcessWebhook_RejectedPixOnlyFlags(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentPix, "mp-2", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	client.payments["mp-2"] = payments.ProviderPayment{ID: "mp-2", Status: "cancelled", ExternalReference: appt.ID}

	if _, err := rec.ProcessWebhook(ctx, delivery("mp-2")); err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	kept, err := store.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("expected pix booking kept, got %v", err)
	}
	if kept.PaymentStatus != model.PaymentRejected || kept.Status != model.StatusScheduled {
		t.Fatalf("expected flagged rejected, got %s %s", kept.PaymentStatus, kept.Status)
	}
}

func TestProcessWebhook_MetadataResolvesAppointment(t *testing.T) {
	rec, svc, store, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentPix, "mp-other", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))

	// Neither the external reference nor the stored payment id matches; only
	// the metadata planted at checkout points at the appointment.
	client.payments["mp-7"] = payments.ProviderPayment{
		ID:       "mp-7",
		Status:   "approved",
		Metadata: map[string]any{"appointment_id": appt.ID},
	}
	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-7"))
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Applied || outcome.AppointmentID != appt.ID {
		t.Fatalf("expected metadata match, got %+v", outcome)
	}
	updated, err := store.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
}

func TestProcessWebhook_MetadataWinsOverExternalReference(t *testing.T) {
	rec, svc, _, client := newTestReconciler(t)
	ctx := context.Background()
	target := bookWithPayment(t, svc, model.PaymentPix, "mp-a", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	other := bookWithPayment(t, svc, model.PaymentPix, "mp-b", time.Date(2026, 9, 14, 11, 0, 0, 0, time.UTC))

	client.payments["mp-a"] = payments.ProviderPayment{
		ID:                "mp-a",
		Status:            "approved",
		ExternalReference: other.ID,
		Metadata:          map[string]any{"appointmentId": target.ID},
	}
	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-a"))
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if outcome.AppointmentID != target.ID {
		t.Fatalf("expected metadata id %s to win, got %s", target.ID, outcome.AppointmentID)
	}
}

func TestProcessWebhook_UnmatchedPayment(t *testing.T) {
	rec, _, store, client := newTestReconciler(t)
	ctx := context.Background()
	client.payments["mp-9"] = payments.ProviderPayment{ID: "mp-9", Status: "approved", ExternalReference: "nope"}

	outcome, err := rec.ProcessWebhook(ctx, delivery("mp-9"))
	if err != nil {
		t.Fatalf("expected unmatched payment swallowed, got %v", err)
	}
	if outcome.AppointmentID != "" || outcome.Status != model.ProcessingIgnored {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if audits := store.WebhookEvents(); len(audits) != 1 || audits[0].ProcessingStatus != model.ProcessingIgnored {
		t.Fatalf("expected IGNORED audit, got %+v", audits)
	}
}

func TestProcessWebhook_NoPaymentID(t *testing.T) {
	rec, _, store, _ := newTestReconciler(t)

	outcome, err := rec.ProcessWebhook(context.Background(), payments.WebhookDelivery{
		Method: "POST",
		Path:   "/webhooks/mercadopago",
		Query:  map[string]string{"topic": "merchant_order"},
	})
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if outcome.Status != model.ProcessingIgnored {
		t.Fatalf("expected ignored, got %+v", outcome)
	}
	if audits := store.WebhookEvents(); len(audits) != 1 {
		t.Fatalf("expected audit row even without payment id, got %d", len(audits))
	}
}

func TestSyncAppointment(t *testing.T) {
	rec, svc, _, client := newTestReconciler(t)
	ctx := context.Background()
	appt := bookWithPayment(t, svc, model.PaymentPix, "mp-3", time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	client.payments["mp-3"] = payments.ProviderPayment{ID: "mp-3", Status: "approved", ExternalReference: appt.ID}

	synced, err := rec.SyncAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if synced.Status != model.StatusConfirmed || synced.PaymentStatus != model.PaymentApproved {
		t.Fatalf("expected confirmed+approved, got %s %s", synced.Status, synced.PaymentStatus)
	}

	// Cash bookings have nothing to sync.
	cash, err := svc.Create(ctx, booking.Draft{
		CustomerName:  "Pedro Costa",
		CustomerPhone: "11912345678",
		HaircutID:     "beard",
		StartTime:     time.Date(2026, 9, 14, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("cash booking: %v", err)
	}
	if _, err := rec.SyncAppointment(ctx, cash.ID); !errors.Is(err, payments.ErrNoProviderPayment) {
		t.Fatalf("expected no provider payment, got %v", err)
	}
}
