package calendar

import (
	"testing"
	"time"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

func TestAvailableSlotsIn_NoBusy(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	workday := WorkdayWindow{Start: 9 * time.Hour, End: 18 * time.Hour}

	slots := AvailableSlotsIn(day, 30*time.Minute, nil, loc, workday)

	if len(slots) != 18 {
		t.Fatalf("expected 18 half-hour slots in a 9h window, got %d", len(slots))
	}
	if !slots[0].Start.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, loc)) {
		t.Errorf("first slot should start at 09:00, got %v", slots[0].Start)
	}
	last := slots[len(slots)-1]
	if !last.End.Equal(time.Date(2026, 3, 10, 18, 0, 0, 0, loc)) {
		t.Errorf("last slot should end at 18:00, got %v", last.End)
	}
}

func TestAvailableSlotsIn_SkipsBusyInterval(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	workday := WorkdayWindow{Start: 9 * time.Hour, End: 12 * time.Hour}
	busy := []models.BusyInterval{
		{Start: time.Date(2026, 3, 10, 10, 0, 0, 0, loc), End: time.Date(2026, 3, 10, 11, 0, 0, 0, loc)},
	}

	slots := AvailableSlotsIn(day, 30*time.Minute, busy, loc, workday)

	for _, s := range slots {
		if busy[0].Overlaps(s.Start, s.End) {
			t.Errorf("slot %v-%v overlaps busy interval", s.Start, s.End)
		}
	}
	// 09:00-12:00 minus 10:00-11:00 leaves 4 half-hour slots
	// (09:00, 09:30, 11:00, 11:30).
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots around the busy interval, got %d", len(slots))
	}
}

func TestAvailableSlotsIn_DurationLongerThanWindow(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	workday := WorkdayWindow{Start: 17 * time.Hour, End: 18 * time.Hour}

	slots := AvailableSlotsIn(day, 2*time.Hour, nil, loc, workday)

	if len(slots) != 0 {
		t.Fatalf("expected no slots when duration exceeds the window, got %d", len(slots))
	}
}

func TestAvailableSlotsIn_InvalidDuration(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	workday := WorkdayWindow{Start: 9 * time.Hour, End: 18 * time.Hour}

	if slots := AvailableSlotsIn(day, 0, nil, loc, workday); slots != nil {
		t.Fatalf("expected nil slots for zero duration, got %v", slots)
	}
}
