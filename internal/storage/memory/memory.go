// Package memory is an in-process store with the same constraint semantics
// as the Postgres repository: per-slot uniqueness, blocked-slot uniqueness,
// and webhook dedupe. Tests run against it instead of a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	appts    map[string]model.Appointment
	slots    map[int64]string
	blocks   map[int64]model.Block
	webhooks map[string]model.WebhookEvent
	dedupe   map[string]string
	events   []outbox.Event
}

func NewStore() *Store {
	return &Store{
		appts:    map[string]model.Appointment{},
		slots:    map[int64]string{},
		blocks:   map[int64]model.Block{},
		webhooks: map[string]model.WebhookEvent{},
		dedupe:   map[string]string{},
	}
}

// Events returns the outbox events recorded so far, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}

// WebhookEvents returns the audit rows, oldest first.
func (s *Store) WebhookEvents() []model.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.WebhookEvent, 0, len(s.webhooks))
	for _, evt := range s.webhooks {
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return appt, nil
}

func (s *Store) AppointmentByProviderPaymentID(_ context.Context, mpPaymentID string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found model.Appointment
	ok := false
	for _, appt := range s.appts {
		if appt.MPPaymentID != mpPaymentID {
			continue
		}
		if !ok || appt.CreatedAt.After(found.CreatedAt) {
			found = appt
			ok = true
		}
	}
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) ActiveAppointmentsInRange(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.Active() && inRange(appt.StartTime, from, to) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) AppointmentsInRange(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appts {
		if inRange(appt.StartTime, from, to) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) AppointmentsFrom(_ context.Context, from time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appts {
		if !appt.StartTime.Before(from) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) AppointmentsByPhone(_ context.Context, phone string, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.CustomerPhone == phone {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateAppointment(_ context.Context, appt model.Appointment, slots []time.Time, evt *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(appt, slots, evt)
}

func (s *Store) CancelAppointment(_ context.Context, id string, patch booking.CancelPatch, evt *outbox.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id, patch, evt)
}

func (s *Store) RescheduleAppointment(_ context.Context, oldID string, replacement model.Appointment, slots []time.Time, patch booking.CancelPatch, evts []outbox.Event) (model.Appointment, model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Conflict check first so a taken target leaves the original untouched.
	for _, slot := range slots {
		if owner, ok := s.slots[slot.Unix()]; ok && owner != oldID {
			return model.Appointment{}, model.Appointment{}, storage.ErrSlotTaken
		}
	}

	cancelled, err := s.cancelLocked(oldID, patch, nil)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	if err := s.createLocked(replacement, slots, nil); err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	for i := range evts {
		s.events = append(s.events, evts[i])
	}
	return replacement, cancelled, nil
}

func (s *Store) createLocked(appt model.Appointment, slots []time.Time, evt *outbox.Event) error {
	for _, slot := range slots {
		if _, taken := s.slots[slot.Unix()]; taken {
			return storage.ErrSlotTaken
		}
	}
	for _, slot := range slots {
		s.slots[slot.Unix()] = appt.ID
	}
	s.appts[appt.ID] = appt
	if evt != nil {
		s.events = append(s.events, *evt)
	}
	return nil
}

func (s *Store) cancelLocked(id string, patch booking.CancelPatch, evt *outbox.Event) (model.Appointment, error) {
	appt, ok := s.appts[id]
	if !ok || appt.Status == model.StatusCancelled {
		return model.Appointment{}, storage.ErrNotFound
	}
	cancelledAt := patch.CancelledAt
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelledByRole = patch.Role
	appt.CancelReason = patch.Reason
	appt.RescheduledToID = patch.RescheduledToID
	appt.UpdatedAt = patch.CancelledAt
	s.appts[id] = appt
	s.freeSlots(id)
	if evt != nil {
		s.events = append(s.events, *evt)
	}
	return appt, nil
}

func (s *Store) UpdatePayment(_ context.Context, id string, patch payments.PaymentPatch, evt *outbox.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	appt.PaymentStatus = patch.Status
	if patch.MPPaymentID != "" {
		appt.MPPaymentID = patch.MPPaymentID
	}
	if patch.Confirm && appt.Status == model.StatusScheduled {
		appt.Status = model.StatusConfirmed
	}
	appt.UpdatedAt = patch.UpdatedAt
	s.appts[id] = appt
	if evt != nil {
		s.events = append(s.events, *evt)
	}
	return appt, nil
}

func (s *Store) DeleteAppointment(_ context.Context, id string, evt *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appts[id]; !ok {
		return storage.ErrNotFound
	}
	// Detach reschedule links pointing at the row, as the SQL store must to
	// satisfy its FKs.
	for otherID, other := range s.appts {
		changed := false
		if other.RescheduledToID == id {
			other.RescheduledToID = ""
			changed = true
		}
		if other.RescheduledFromID == id {
			other.RescheduledFromID = ""
			changed = true
		}
		if changed {
			s.appts[otherID] = other
		}
	}
	delete(s.appts, id)
	s.freeSlots(id)
	if evt != nil {
		s.events = append(s.events, *evt)
	}
	return nil
}

func (s *Store) CreateBlock(_ context.Context, block model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := block.StartTime.Unix()
	if _, ok := s.blocks[key]; ok {
		return storage.ErrAlreadyBlocked
	}
	s.blocks[key] = block
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, slot time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slot.Unix()
	if _, ok := s.blocks[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.blocks, key)
	return nil
}

func (s *Store) BlocksInRange(_ context.Context, from, to time.Time) ([]model.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Block
	for _, block := range s.blocks {
		if inRange(block.StartTime, from, to) {
			out = append(out, block)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) BlocksFrom(_ context.Context, from time.Time) ([]model.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Block
	for _, block := range s.blocks {
		if !block.StartTime.Before(from) {
			out = append(out, block)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) InsertWebhookEvent(_ context.Context, evt model.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.MPPaymentID != "" {
		key := evt.Provider + "|" + evt.MPPaymentID + "|" + evt.EventAction
		if _, ok := s.dedupe[key]; ok {
			return storage.ErrDuplicateEvent
		}
		s.dedupe[key] = evt.ID
	}
	s.webhooks[evt.ID] = evt
	return nil
}

func (s *Store) FinishWebhookEvent(_ context.Context, id string, status model.ProcessingStatus, errMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.webhooks[id]
	if !ok {
		return storage.ErrNotFound
	}
	evt.ProcessingStatus = status
	evt.ErrorMessage = errMessage
	evt.ProcessedAt = at
	s.webhooks[id] = evt
	return nil
}

func (s *Store) freeSlots(appointmentID string) {
	for key, owner := range s.slots {
		if owner == appointmentID {
			delete(s.slots, key)
		}
	}
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
}
