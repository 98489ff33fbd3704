package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barbearia-galileu/booking-server/internal/catalog"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

// Service owns the appointment lifecycle: create, cancel (staff and
// customer), and reschedule. All slot math goes through the calendar; all
// writes go through the store, which closes the double-booking race with the
// per-slot uniqueness constraint.
type Service struct {
	store    Store
	cal      *schedule.Calendar
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, cal *schedule.Calendar, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		cal:      cal,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Calendar() *schedule.Calendar {
	return s.cal
}

// NormalizePhone strips everything but digits and drops a leading 55 country
// code, so "+55 (11) 98765-4321" and "11987654321" key the same customer.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		return digits[2:]
	}
	return digits
}

type Draft struct {
	CustomerName  string
	CustomerPhone string
	HaircutID     string
	StartTime     time.Time
	Notes         string

	// Payment-initiated bookings carry the method and the provider payment
	// id; walk-in bookings leave both empty and settle in cash.
	PaymentMethod model.PaymentMethod
	MPPaymentID   string
}

func (s *Service) Create(ctx context.Context, draft Draft) (model.Appointment, error) {
	name := strings.TrimSpace(draft.CustomerName)
	if len([]rune(name)) < 3 {
		return model.Appointment{}, invalid("customerName", "inform the full name")
	}
	phone := NormalizePhone(draft.CustomerPhone)
	if len(phone) < 8 {
		return model.Appointment{}, invalid("customerPhone", "invalid phone")
	}
	haircut, ok := catalog.ByID(draft.HaircutID)
	if !ok {
		return model.Appointment{}, invalid("haircutId", "unknown service")
	}

	slot, ok := s.cal.NormalizeToSlot(draft.StartTime)
	if !ok {
		return model.Appointment{}, ErrOutsideBusinessHours
	}
	span := s.cal.SequentialSlots(slot, haircut.DurationMinutes)
	if len(span) != schedule.SlotCount(haircut.DurationMinutes, int(s.cal.Interval()/time.Minute)) {
		return model.Appointment{}, ErrOutsideBusinessHours
	}

	if err := s.ensureSlotsFree(ctx, span); err != nil {
		return model.Appointment{}, err
	}

	method := draft.PaymentMethod
	if method == "" {
		method = model.PaymentCash
	}
	var paymentStatus model.PaymentStatus
	if method != model.PaymentCash {
		if draft.MPPaymentID == "" {
			return model.Appointment{}, invalid("paymentId", "payment id required for "+string(method))
		}
		paymentStatus = model.PaymentPending
	}

	now := s.now().UTC()
	appt := model.Appointment{
		ID:              uuid.NewString(),
		CustomerName:    name,
		CustomerPhone:   phone,
		HaircutID:       haircut.ID,
		Notes:           strings.TrimSpace(draft.Notes),
		StartTime:       span[0],
		DurationMinutes: haircut.DurationMinutes,
		Status:          model.StatusScheduled,
		PaymentMethod:   method,
		PaymentStatus:   paymentStatus,
		MPPaymentID:     draft.MPPaymentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	evt, err := bookedEvent(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.store.CreateAppointment(ctx, appt, span, &evt); err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}

	s.notifyBooked(appt, haircut)
	return appt, nil
}

// Cancel is the staff path: no ownership or payment guard beyond existence.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return model.Appointment{}, ErrAlreadyCancelled
	}
	return s.cancel(ctx, appt, CancelPatch{
		CancelledAt: s.now().UTC(),
		Role:        model.RoleBarber,
		Reason:      strings.TrimSpace(reason),
	})
}

func (s *Service) CancelByCustomer(ctx context.Context, id, phone, reason string) (model.Appointment, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.guardCustomerMutation(appt, phone); err != nil {
		return model.Appointment{}, err
	}
	return s.cancel(ctx, appt, CancelPatch{
		CancelledAt: s.now().UTC(),
		Role:        model.RoleCustomer,
		Reason:      strings.TrimSpace(reason),
	})
}

// RescheduleResult pairs the replacement appointment with the superseded one.
type RescheduleResult struct {
	New model.Appointment
	Old model.Appointment
}

// Reschedule cancels the appointment and books a replacement in one
// transaction. A conflict on the target span leaves the original untouched.
func (s *Service) Reschedule(ctx context.Context, id, phone string, newStart time.Time, reason string) (RescheduleResult, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return RescheduleResult{}, err
	}
	if err := s.guardCustomerMutation(appt, phone); err != nil {
		return RescheduleResult{}, err
	}

	slot, ok := s.cal.NormalizeToSlot(newStart)
	if !ok {
		return RescheduleResult{}, ErrOutsideBusinessHours
	}
	// The replacement keeps the duration copied at booking time, not the
	// catalog's current one.
	span := s.cal.SequentialSlots(slot, appt.DurationMinutes)
	if len(span) != schedule.SlotCount(appt.DurationMinutes, int(s.cal.Interval()/time.Minute)) {
		return RescheduleResult{}, ErrOutsideBusinessHours
	}
	if err := s.ensureSlotsFree(ctx, span); err != nil {
		return RescheduleResult{}, err
	}

	now := s.now().UTC()
	replacement := model.Appointment{
		ID:                uuid.NewString(),
		CustomerName:      appt.CustomerName,
		CustomerPhone:     appt.CustomerPhone,
		HaircutID:         appt.HaircutID,
		Notes:             appt.Notes,
		StartTime:         span[0],
		DurationMinutes:   appt.DurationMinutes,
		Status:            model.StatusScheduled,
		PaymentMethod:     appt.PaymentMethod,
		PaymentStatus:     appt.PaymentStatus,
		MPPaymentID:       appt.MPPaymentID,
		RescheduledFromID: appt.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	patch := CancelPatch{
		CancelledAt:     now,
		Role:            model.RoleCustomer,
		Reason:          strings.TrimSpace(reason),
		RescheduledToID: replacement.ID,
	}

	bookedEvt, err := bookedEvent(replacement)
	if err != nil {
		return RescheduleResult{}, err
	}
	cancelledEvt, err := cancelledEvent(appt, patch)
	if err != nil {
		return RescheduleResult{}, err
	}

	created, cancelled, err := s.store.RescheduleAppointment(ctx, appt.ID, replacement, span, patch, []outbox.Event{bookedEvt, cancelledEvt})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return RescheduleResult{}, ErrSlotUnavailable
		}
		return RescheduleResult{}, err
	}
	return RescheduleResult{New: created, Old: cancelled}, nil
}

// ListUpcoming returns appointments starting today (local time) or later,
// oldest first. Staff view, cancelled included.
func (s *Service) ListUpcoming(ctx context.Context) ([]model.Appointment, error) {
	dayStart, _ := s.cal.LocalDayRange(s.now())
	return s.store.AppointmentsFrom(ctx, dayStart)
}

// Summary is the customer-facing view of one appointment.
type Summary struct {
	ID                string
	StartTime         time.Time
	HaircutID         string
	Status            model.AppointmentStatus
	CancelledAt       *time.Time
	CancelReason      string
	RescheduledFromID string
	RescheduledToID   string
	CanCancel         bool
	CanReschedule     bool
}

func (s *Service) ListByPhone(ctx context.Context, phone string, limit int) ([]Summary, error) {
	normalized := NormalizePhone(phone)
	if len(normalized) < 8 {
		return nil, invalid("phone", "invalid phone")
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	appts, err := s.store.AppointmentsByPhone(ctx, normalized, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summaries := make([]Summary, 0, len(appts))
	for _, appt := range appts {
		modifiable := s.canModify(appt, now)
		summaries = append(summaries, Summary{
			ID:                appt.ID,
			StartTime:         appt.StartTime,
			HaircutID:         appt.HaircutID,
			Status:            appt.Status,
			CancelledAt:       appt.CancelledAt,
			CancelReason:      appt.CancelReason,
			RescheduledFromID: appt.RescheduledFromID,
			RescheduledToID:   appt.RescheduledToID,
			CanCancel:         modifiable,
			CanReschedule:     modifiable,
		})
	}
	return summaries, nil
}

// MonthlySummary aggregates bookings for the local calendar month.
type MonthlySummary struct {
	Month     string
	Total     int
	ByService map[string]int
}

func (s *Service) MonthlyMetrics(ctx context.Context, month string, includeCancelled bool) (MonthlySummary, error) {
	from, to, err := s.cal.MonthRange(month)
	if err != nil {
		return MonthlySummary{}, invalid("month", "inform the month as YYYY-MM")
	}
	appts, err := s.store.AppointmentsInRange(ctx, from, to)
	if err != nil {
		return MonthlySummary{}, err
	}
	summary := MonthlySummary{Month: month, ByService: map[string]int{}}
	for _, appt := range appts {
		if !includeCancelled && appt.Status == model.StatusCancelled {
			continue
		}
		summary.Total++
		summary.ByService[appt.HaircutID]++
	}
	return summary, nil
}

func (s *Service) getAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) guardCustomerMutation(appt model.Appointment, phone string) error {
	if NormalizePhone(phone) != NormalizePhone(appt.CustomerPhone) {
		return ErrOwnershipMismatch
	}
	if appt.PaymentStatus == model.PaymentApproved {
		return ErrPaymentCaptured
	}
	if !appt.StartTime.After(s.now()) {
		return ErrNotCancellable
	}
	if appt.Status != model.StatusScheduled && appt.Status != model.StatusConfirmed {
		return ErrNotCancellable
	}
	return nil
}

func (s *Service) canModify(appt model.Appointment, now time.Time) bool {
	if !appt.StartTime.After(now) {
		return false
	}
	if appt.Status != model.StatusScheduled && appt.Status != model.StatusConfirmed {
		return false
	}
	return appt.PaymentStatus != model.PaymentApproved
}

func (s *Service) cancel(ctx context.Context, appt model.Appointment, patch CancelPatch) (model.Appointment, error) {
	evt, err := cancelledEvent(appt, patch)
	if err != nil {
		return model.Appointment{}, err
	}
	updated, err := s.store.CancelAppointment(ctx, appt.ID, patch, &evt)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	return updated, nil
}

// ensureSlotsFree is the conflict guard: every requested slot must be outside
// every active appointment's span and free of blocks. The storage uniqueness
// constraint backstops the race between this check and the insert.
func (s *Service) ensureSlotsFree(ctx context.Context, slots []time.Time) error {
	if len(slots) == 0 {
		return invalid("startTime", "no slots requested")
	}

	requested := make(map[int64]struct{}, len(slots))
	for _, slot := range slots {
		requested[slot.Unix()] = struct{}{}
	}

	dayStart, dayEnd := s.cal.LocalDayRange(slots[0])
	appts, err := s.store.ActiveAppointmentsInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, appt := range appts {
		for _, taken := range s.cal.SequentialSlots(appt.StartTime, appt.DurationMinutes) {
			if _, ok := requested[taken.Unix()]; ok {
				return ErrSlotUnavailable
			}
		}
	}

	blocks, err := s.store.BlocksInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		if _, ok := requested[block.StartTime.Unix()]; ok {
			return ErrSlotBlocked
		}
	}
	return nil
}

func (s *Service) notifyBooked(appt model.Appointment, haircut catalog.Haircut) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.AppointmentBooked(ctx, appt, haircut); err != nil {
			s.logger.Warn("booking confirmation notification failed", "appointment_id", appt.ID, "err", err)
		}
	}()
}

func bookedEvent(appt model.Appointment) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"haircut_id":     appt.HaircutID,
		"customer_phone": appt.CustomerPhone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"duration_mins":  appt.DurationMinutes,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}, nil
}

func cancelledEvent(appt model.Appointment, patch CancelPatch) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":    appt.ID,
		"start_time":        appt.StartTime.UTC().Format(time.RFC3339),
		"cancelled_at":      patch.CancelledAt.UTC().Format(time.RFC3339),
		"cancelled_by":      string(patch.Role),
		"reason":            patch.Reason,
		"rescheduled_to_id": patch.RescheduledToID,
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
