package booking

import (
	"context"
	"time"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

type SlotAvailability struct {
	Time   time.Time  `json:"time"`
	Status SlotStatus `json:"status"`
}

// Availability renders the slot grid for the local day containing t.
// A slot inside a block is blocked even when an appointment also covers it.
func (s *Service) Availability(ctx context.Context, t time.Time) ([]SlotAvailability, error) {
	grid := s.cal.DailySlots(t)
	dayStart, dayEnd := s.cal.LocalDayRange(t)

	appts, err := s.store.ActiveAppointmentsInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	booked := make(map[int64]struct{})
	for _, appt := range appts {
		for _, slot := range s.cal.SequentialSlots(appt.StartTime, appt.DurationMinutes) {
			booked[slot.Unix()] = struct{}{}
		}
	}

	blocks, err := s.store.BlocksInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	blocked := make(map[int64]struct{}, len(blocks))
	for _, block := range blocks {
		blocked[block.StartTime.Unix()] = struct{}{}
	}

	out := make([]SlotAvailability, 0, len(grid))
	for _, slot := range grid {
		status := SlotAvailable
		if _, ok := booked[slot.Unix()]; ok {
			status = SlotBooked
		}
		if _, ok := blocked[slot.Unix()]; ok {
			status = SlotBlocked
		}
		out = append(out, SlotAvailability{Time: slot, Status: status})
	}
	return out, nil
}
