package blocks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/blocks"
	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage/memory"
)

var testNow = time.Date(2026, 9, 14, 7, 0, 0, 0, time.UTC)

func newTestServices(t *testing.T) (*blocks.Service, *booking.Service, *memory.Store) {
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
	blockSvc := blocks.NewService(store, cal).WithClock(func() time.Time { return testNow })
	return blockSvc, bookingSvc, store
}

func TestCreate_RejectsBookedAndDuplicate(t *testing.T) {
	blockSvc, bookingSvc, _ := newTestServices(t)
	ctx := context.Background()

	if _, err := bookingSvc.Create(ctx, booking.Draft{
		CustomerName:  "João Silva",
		CustomerPhone: "11987654321",
		HaircutID:     "classic",
		StartTime:     time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := blockSvc.Create(ctx, time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC), ""); !errors.Is(err, blocks.ErrSlotBooked) {
		t.Fatalf("expected slot booked, got %v", err)
	}
	if _, err := blockSvc.Create(ctx, time.Date(2026, 9, 14, 9, 10, 0, 0, time.UTC), ""); !errors.Is(err, blocks.ErrOutsideBusinessHours) {
		t.Fatalf("expected outside business hours for off-grid time, got %v", err)
	}

	at := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	if _, err := blockSvc.Create(ctx, at, "almoço"); err != nil {
		t.Fatalf("create block: %v", err)
	}
	if _, err := blockSvc.Create(ctx, at, "almoço"); !errors.Is(err, blocks.ErrAlreadyBlocked) {
		t.Fatalf("expected already blocked, got %v", err)
	}

	// A blocked slot rejects bookings.
	if _, err := bookingSvc.Create(ctx, booking.Draft{
		CustomerName:  "Pedro Costa",
		CustomerPhone: "11912345678",
		HaircutID:     "classic",
		StartTime:     at,
	}); !errors.Is(err, booking.ErrSlotBlocked) {
		t.Fatalf("expected slot blocked, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	blockSvc, _, _ := newTestServices(t)
	ctx := context.Background()
	at := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)

	if err := blockSvc.Remove(ctx, at); !errors.Is(err, blocks.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := blockSvc.Create(ctx, at, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := blockSvc.Remove(ctx, at); err != nil {
		t.Fatalf("remove: %v", err)
	}

	out, err := blockSvc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty list, got %d", len(out))
	}
}

func TestBulkCreate_PartialSuccess(t *testing.T) {
	blockSvc, bookingSvc, _ := newTestServices(t)
	ctx := context.Background()

	if _, err := bookingSvc.Create(ctx, booking.Draft{
		CustomerName:  "João Silva",
		CustomerPhone: "11987654321",
		HaircutID:     "classic",
		StartTime:     time.Date(2026, 9, 14, 14, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("book: %v", err)
	}

	report, err := blockSvc.BulkCreate(ctx, "2026-09-14", []string{"12:00", "12:30", "12:15", "14:00"}, "almoço")
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if len(report.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(report.Created))
	}
	skipped := map[string]string{}
	for _, s := range report.Skipped {
		skipped[s.Time] = s.Reason
	}
	if skipped["12:15"] != blocks.SkipInvalidSlot {
		t.Fatalf("expected invalid_slot for 12:15, got %q", skipped["12:15"])
	}
	if skipped["14:00"] != blocks.SkipAppointmentConflict {
		t.Fatalf("expected appointment_conflict for 14:00, got %q", skipped["14:00"])
	}

	// Rerunning the same batch reports everything as already blocked.
	again, err := blockSvc.BulkCreate(ctx, "2026-09-14", []string{"12:00", "12:30"}, "almoço")
	if err != nil {
		t.Fatalf("bulk create again: %v", err)
	}
	if len(again.Created) != 0 || len(again.Skipped) != 2 {
		t.Fatalf("expected all skipped, got %+v", again)
	}
	for _, s := range again.Skipped {
		if s.Reason != blocks.SkipAlreadyBlocked {
			t.Fatalf("expected already_blocked, got %q", s.Reason)
		}
	}
}

func TestBulkDelete(t *testing.T) {
	blockSvc, _, _ := newTestServices(t)
	ctx := context.Background()

	if _, err := blockSvc.BulkCreate(ctx, "2026-09-14", []string{"12:00", "12:30"}, ""); err != nil {
		t.Fatalf("bulk create: %v", err)
	}

	report, err := blockSvc.BulkDelete(ctx, "2026-09-14", []string{"12:00", "12:30", "13:00"})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if len(report.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(report.Removed))
	}
	if len(report.NotFound) != 1 || report.NotFound[0] != "13:00" {
		t.Fatalf("expected 13:00 not found, got %+v", report.NotFound)
	}

	if _, err := blockSvc.BulkDelete(ctx, "14/09/2026", []string{"12:00"}); err == nil {
		t.Fatal("expected malformed date to error")
	}
}
