package schedule

import (
	"testing"
	"time"
)

func testCalendar() *Calendar {
	return New(Config{
		Location:        time.UTC,
		OpenHour:        8,
		CloseHour:       20,
		IntervalMinutes: 30,
	})
}

func TestDailySlots_GridShape(t *testing.T) {
	cal := testCalendar()
	day := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

	slots := cal.DailySlots(day)
	if len(slots) != 24 {
		t.Fatalf("expected 24 slots for a 08:00-20:00 day at 30min, got %d", len(slots))
	}
	if !slots[0].Equal(time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first slot 08:00, got %s", slots[0].Format(time.RFC3339))
	}
	last := slots[len(slots)-1]
	if !last.Equal(time.Date(2026, 9, 14, 19, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected last slot 19:30, got %s", last.Format(time.RFC3339))
	}
}

func TestDailySlots_TimezoneBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cal := New(Config{Location: loc, OpenHour: 8, CloseHour: 20, IntervalMinutes: 30})

	// 01:00 UTC is still the previous local day in São Paulo (UTC-3).
	at := time.Date(2026, 9, 15, 1, 0, 0, 0, time.UTC)
	slots := cal.DailySlots(at)
	if len(slots) == 0 {
		t.Fatal("expected a slot grid")
	}
	want := time.Date(2026, 9, 14, 8, 0, 0, 0, loc).UTC()
	if !slots[0].Equal(want) {
		t.Fatalf("expected first slot %s, got %s", want.Format(time.RFC3339), slots[0].Format(time.RFC3339))
	}
}

func TestNormalizeToSlot(t *testing.T) {
	cal := testCalendar()

	onGrid := time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC)
	slot, ok := cal.NormalizeToSlot(onGrid)
	if !ok || !slot.Equal(onGrid) {
		t.Fatalf("expected 09:30 to normalize to itself, got %v %v", slot, ok)
	}

	if _, ok := cal.NormalizeToSlot(onGrid.Add(10 * time.Minute)); ok {
		t.Fatal("expected off-grid 09:40 to be rejected")
	}
	if _, ok := cal.NormalizeToSlot(time.Date(2026, 9, 14, 7, 30, 0, 0, time.UTC)); ok {
		t.Fatal("expected 07:30 before opening to be rejected")
	}
	if _, ok := cal.NormalizeToSlot(time.Date(2026, 9, 14, 20, 0, 0, 0, time.UTC)); ok {
		t.Fatal("expected 20:00 closing boundary to be rejected")
	}
}

func TestSequentialSlots(t *testing.T) {
	cal := testCalendar()
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

	span := cal.SequentialSlots(start, 90)
	if len(span) != 3 {
		t.Fatalf("expected 3 slots for 90min, got %d", len(span))
	}
	if !span[2].Equal(start.Add(time.Hour)) {
		t.Fatalf("expected last slot 10:00, got %s", span[2].Format(time.RFC3339))
	}
}

func TestSequentialSlots_RunsOffGrid(t *testing.T) {
	cal := testCalendar()
	// 19:30 is the last slot; a 60min service needs 19:30 and 20:00.
	start := time.Date(2026, 9, 14, 19, 30, 0, 0, time.UTC)

	span := cal.SequentialSlots(start, 60)
	if len(span) != 1 {
		t.Fatalf("expected short span of 1, got %d", len(span))
	}
}

func TestSlotCount(t *testing.T) {
	cases := []struct {
		duration, interval, want int
	}{
		{30, 30, 1},
		{45, 30, 2},
		{60, 30, 2},
		{90, 30, 3},
		{0, 30, 1},
	}
	for _, tc := range cases {
		if got := SlotCount(tc.duration, tc.interval); got != tc.want {
			t.Fatalf("SlotCount(%d, %d) = %d, want %d", tc.duration, tc.interval, got, tc.want)
		}
	}
}

func TestSlotAtLocalTime(t *testing.T) {
	cal := testCalendar()
	day, err := cal.ParseLocalDate("2026-09-14")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}

	slot, ok := cal.SlotAtLocalTime(day, "12:00")
	if !ok {
		t.Fatal("expected 12:00 to resolve")
	}
	if !slot.Equal(time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected slot %s", slot.Format(time.RFC3339))
	}

	if _, ok := cal.SlotAtLocalTime(day, "12:10"); ok {
		t.Fatal("expected off-grid 12:10 to be rejected")
	}
	if _, ok := cal.SlotAtLocalTime(day, "banana"); ok {
		t.Fatal("expected unparseable time to be rejected")
	}
}

func TestMonthRange(t *testing.T) {
	cal := testCalendar()
	from, to, err := cal.MonthRange("2026-09")
	if err != nil {
		t.Fatalf("month range: %v", err)
	}
	if !from.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %s", from.Format(time.RFC3339))
	}
	if !to.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to %s", to.Format(time.RFC3339))
	}
	if _, _, err := cal.MonthRange("09/2026"); err == nil {
		t.Fatal("expected malformed month to error")
	}
}
