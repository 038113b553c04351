package models

import "time"

// MeetingStatus is the lifecycle state of a scheduled Meeting.
type MeetingStatus string

const (
	MeetingScheduled   MeetingStatus = "scheduled"
	MeetingCompleted   MeetingStatus = "completed"
	MeetingCancelled   MeetingStatus = "cancelled"
	MeetingRescheduled MeetingStatus = "rescheduled"
)

// Meeting is a calendar appointment booked for a qualified lead. At most one
// non-cancelled Meeting exists per LeadQualification at any time, and
// StartTime must precede EndTime.
type Meeting struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	LeadQualificationID string       `json:"lead_qualification_id"`
	ExternalMeetingID  string        `json:"external_meeting_id,omitempty"`
	Subject            string        `json:"subject"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	Status             MeetingStatus `json:"status"`
	OnlineMeetingURL   string        `json:"online_meeting_url,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Valid reports whether the meeting satisfies the start-before-end
// invariant.
func (m *Meeting) Valid() bool {
	if m == nil {
		return false
	}
	return m.StartTime.Before(m.EndTime)
}

// BusyInterval is a half-open [Start, End) window during which the
// calendar owner is unavailable, as returned by the Calendar Client's
// GetSchedule operation.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}
