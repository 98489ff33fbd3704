package booking

import (
	"context"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/catalog"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
)

// CancelPatch carries everything a cancellation writes. The service fills the
// timestamp so storage stays a dumb executor.
type CancelPatch struct {
	CancelledAt     time.Time
	Role            model.CancelRole
	Reason          string
	RescheduledToID string
}

// Store is the transactional slice of storage the booking service needs.
// Mutations that name an outbox event must write it in the same transaction
// as the entity change. CreateAppointment and RescheduleAppointment insert
// one slot row per spanned slot; a uniqueness collision on any of those rows
// must surface as storage.ErrSlotTaken with nothing committed.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ActiveAppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	AppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	AppointmentsByPhone(ctx context.Context, phone string, limit int) ([]model.Appointment, error)
	AppointmentsFrom(ctx context.Context, from time.Time) ([]model.Appointment, error)
	BlocksInRange(ctx context.Context, from, to time.Time) ([]model.Block, error)

	CreateAppointment(ctx context.Context, appt model.Appointment, slots []time.Time, evt *outbox.Event) error
	CancelAppointment(ctx context.Context, id string, patch CancelPatch, evt *outbox.Event) (model.Appointment, error)
	RescheduleAppointment(ctx context.Context, oldID string, replacement model.Appointment, slots []time.Time, patch CancelPatch, evts []outbox.Event) (created model.Appointment, cancelled model.Appointment, err error)
}

// Notifier delivers booking confirmations. Implementations must be safe for
// concurrent use; delivery is best-effort and never blocks a booking.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt model.Appointment, haircut catalog.Haircut) error
}
