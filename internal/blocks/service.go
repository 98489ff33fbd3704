package blocks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

// Service manages barber-owned slot blocks. Blocks are single slots; a
// multi-slot break is a bulk create over consecutive times.
type Service struct {
	store Store
	cal   *schedule.Calendar
	now   func() time.Time
}

func NewService(store Store, cal *schedule.Calendar) *Service {
	return &Service{store: store, cal: cal, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, at time.Time, reason string) (model.Block, error) {
	slot, ok := s.cal.NormalizeToSlot(at)
	if !ok {
		return model.Block{}, ErrOutsideBusinessHours
	}
	if err := s.ensureNoAppointment(ctx, slot); err != nil {
		return model.Block{}, err
	}
	block := model.Block{
		ID:        uuid.NewString(),
		StartTime: slot,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateBlock(ctx, block); err != nil {
		if errors.Is(err, storage.ErrAlreadyBlocked) {
			return model.Block{}, ErrAlreadyBlocked
		}
		return model.Block{}, err
	}
	return block, nil
}

func (s *Service) Remove(ctx context.Context, at time.Time) error {
	slot, ok := s.cal.NormalizeToSlot(at)
	if !ok {
		return ErrOutsideBusinessHours
	}
	if err := s.store.DeleteBlock(ctx, slot); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns blocks from the start of the local day containing t onward.
func (s *Service) List(ctx context.Context) ([]model.Block, error) {
	dayStart, _ := s.cal.LocalDayRange(s.now())
	return s.store.BlocksFrom(ctx, dayStart)
}

// Skip reasons reported by bulk operations.
const (
	SkipInvalidSlot         = "invalid_slot"
	SkipAppointmentConflict = "appointment_conflict"
	SkipAlreadyBlocked      = "already_blocked"
	SkipNotFound            = "not_found"
)

type SkippedSlot struct {
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

type BulkCreateReport struct {
	Created []model.Block `json:"created"`
	Skipped []SkippedSlot `json:"skipped"`
}

// BulkCreate blocks the given wall-clock times ("15:04") on the given local
// date. Each slot succeeds or is skipped independently; one bad entry never
// fails the batch.
func (s *Service) BulkCreate(ctx context.Context, date string, times []string, reason string) (BulkCreateReport, error) {
	day, err := s.cal.ParseLocalDate(date)
	if err != nil {
		return BulkCreateReport{}, err
	}

	report := BulkCreateReport{Created: []model.Block{}, Skipped: []SkippedSlot{}}
	for _, hhmm := range times {
		slot, ok := s.cal.SlotAtLocalTime(day, hhmm)
		if !ok {
			report.Skipped = append(report.Skipped, SkippedSlot{Time: hhmm, Reason: SkipInvalidSlot})
			continue
		}
		if err := s.ensureNoAppointment(ctx, slot); err != nil {
			if errors.Is(err, ErrSlotBooked) {
				report.Skipped = append(report.Skipped, SkippedSlot{Time: hhmm, Reason: SkipAppointmentConflict})
				continue
			}
			return BulkCreateReport{}, err
		}
		block := model.Block{
			ID:        uuid.NewString(),
			StartTime: slot,
			Reason:    strings.TrimSpace(reason),
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.CreateBlock(ctx, block); err != nil {
			if errors.Is(err, storage.ErrAlreadyBlocked) {
				report.Skipped = append(report.Skipped, SkippedSlot{Time: hhmm, Reason: SkipAlreadyBlocked})
				continue
			}
			return BulkCreateReport{}, err
		}
		report.Created = append(report.Created, block)
	}
	return report, nil
}

type BulkDeleteReport struct {
	Removed  []string `json:"removed"`
	NotFound []string `json:"not_found"`
}

func (s *Service) BulkDelete(ctx context.Context, date string, times []string) (BulkDeleteReport, error) {
	day, err := s.cal.ParseLocalDate(date)
	if err != nil {
		return BulkDeleteReport{}, err
	}

	report := BulkDeleteReport{Removed: []string{}, NotFound: []string{}}
	for _, hhmm := range times {
		slot, ok := s.cal.SlotAtLocalTime(day, hhmm)
		if !ok {
			report.NotFound = append(report.NotFound, hhmm)
			continue
		}
		if err := s.store.DeleteBlock(ctx, slot); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				report.NotFound = append(report.NotFound, hhmm)
				continue
			}
			return BulkDeleteReport{}, err
		}
		report.Removed = append(report.Removed, hhmm)
	}
	return report, nil
}

func (s *Service) ensureNoAppointment(ctx context.Context, slot time.Time) error {
	dayStart, dayEnd := s.cal.LocalDayRange(slot)
	appts, err := s.store.ActiveAppointmentsInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, appt := range appts {
		for _, taken := range s.cal.SequentialSlots(appt.StartTime, appt.DurationMinutes) {
			if taken.Equal(slot) {
				return ErrSlotBooked
			}
		}
	}
	return nil
}
