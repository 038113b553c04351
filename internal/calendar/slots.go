package calendar

import (
	"sort"
	"time"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

const slotAlignment = 30 * time.Minute

// AvailableSlots implements spec.md §4.2's slot-derivation rule: given a
// day, the client's configured working window, and a slot duration,
// produce the maximal ordered list of [t, t+duration) starting on
// 30-minute boundaries that fits inside the working window and overlaps
// no busy interval.
func (c *Client) AvailableSlots(day time.Time, duration time.Duration, busy []models.BusyInterval) []Slot {
	return AvailableSlotsIn(day, duration, busy, c.location, c.workday)
}

// Slot is one bookable [Start, End) window.
type Slot struct {
	Start time.Time
	End   time.Time
}

// AvailableSlotsIn is the pure form of AvailableSlots, taking the location
// and working window explicitly so it can be unit tested without a live
// Client.
func AvailableSlotsIn(day time.Time, duration time.Duration, busy []models.BusyInterval, loc *time.Location, workday WorkdayWindow) []Slot {
	if duration <= 0 {
		return nil
	}
	local := day.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	windowStart := midnight.Add(workday.Start)
	windowEnd := midnight.Add(workday.End)
	if !windowStart.Before(windowEnd) {
		return nil
	}

	sorted := make([]models.BusyInterval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []Slot
	t := alignUp(windowStart, slotAlignment)
	for !t.Add(duration).After(windowEnd) {
		candidateEnd := t.Add(duration)
		if !intersectsAny(t, candidateEnd, sorted) {
			out = append(out, Slot{Start: t, End: candidateEnd})
		}
		t = t.Add(slotAlignment)
	}
	return out
}

func intersectsAny(start, end time.Time, busy []models.BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func alignUp(t time.Time, step time.Duration) time.Time {
	rem := t.Sub(t.Truncate(step))
	if rem == 0 {
		return t
	}
	return t.Truncate(step).Add(step)
}
