package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tdxcore/leadqualifier/internal/agent"
	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/internal/qualification"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// appliedEffects is what step 5 hands to step 6: the qualification.Effects
// derived from whichever tools actually ran, a user-facing notice if a
// permanent error halted the batch partway through, and the formatted
// result of get_available_slots (the one read-style tool, which has no
// other way back to the model than riding along in the reply).
type appliedEffects struct {
	effects        qualification.Effects
	failureNotice  string
	availableSlots string
}

// applyTools runs each tool invocation in order against C1/C2. A permanent
// error halts the remaining invocations in the batch and records a
// friendly failure notice; a transient error is treated the same way here
// since the client layers (calendar, messaging) have already exhausted
// their own retries by the time an error reaches the orchestrator.
func (o *Orchestrator) applyTools(ctx context.Context, conv *models.Conversation, lead *models.LeadQualification, calls []agent.ToolCall) appliedEffects {
	result := appliedEffects{}

	for _, call := range calls {
		callStart := time.Now()
		var err error
		switch call.Name {
		case agent.ToolRecordConsent:
			err = o.applyRecordConsent(ctx, lead, call, &result.effects)
		case agent.ToolRecordPersonalData:
			err = o.applyRecordPersonalData(ctx, conv, call)
		case agent.ToolRecordBant:
			err = o.applyRecordBant(ctx, lead, call)
		case agent.ToolRecordRequirements:
			err = o.applyRecordRequirements(ctx, lead, call)
		case agent.ToolGetAvailableSlots:
			// Read-only: there is no tool-result feedback path back into
			// this same Complete call, so the computed slots ride along
			// in result.availableSlots and get folded into the reply the
			// model (and the next turn's history) actually sees.
			err = o.applyGetAvailableSlots(ctx, call, &result)
		case agent.ToolScheduleMeeting:
			err = o.applyScheduleMeeting(ctx, lead, call)
		case agent.ToolCancelMeeting:
			err = o.applyCancelMeeting(ctx, call)
		case agent.ToolEndConversation:
			err = o.applyEndConversation(call, &result.effects)
		default:
			continue
		}

		if o.metrics != nil {
			o.metrics.RecordToolCall(call.Name, err == nil, time.Since(callStart))
		}

		if err != nil {
			o.logger.Error("tool application failed", "tool", call.Name, "error", err)
			if errs.IsRetryable(err) {
				result.failureNotice = "I ran into a temporary issue on my end and couldn't finish that just now. Let's try again in a moment."
			} else {
				result.failureNotice = "I wasn't able to complete that request. Could you try rephrasing it?"
			}
			break
		}
	}

	return result
}

func (o *Orchestrator) applyRecordConsent(ctx context.Context, lead *models.LeadQualification, call agent.ToolCall, eff *qualification.Effects) error {
	var args struct {
		Consent bool `json:"consent"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("record_consent: invalid arguments: %v", err))
	}

	if _, err := o.store.Leads.SetConsent(ctx, lead.ID, args.Consent); err != nil {
		return err
	}

	eff.ConsentGiven = &args.Consent
	eff.ConsecutiveRefusals = o.trackRefusal(lead.ID, args.Consent)
	return nil
}

// trackRefusal maintains the consecutive-refusal counter the state machine
// needs across turns, since qualification.Next is otherwise stateless.
func (o *Orchestrator) trackRefusal(leadID string, consent bool) int {
	o.refusalsMu.Lock()
	defer o.refusalsMu.Unlock()
	if consent {
		delete(o.refusals, leadID)
		return 0
	}
	o.refusals[leadID]++
	return o.refusals[leadID]
}

func (o *Orchestrator) applyRecordPersonalData(ctx context.Context, conv *models.Conversation, call agent.ToolCall) error {
	var args struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Company  string `json:"company"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("record_personal_data: invalid arguments: %v", err))
	}
	if args.FullName == "" {
		return errs.Validation("record_personal_data: full_name is required")
	}

	user, err := o.store.Users.Get(ctx, conv.UserID)
	if err != nil {
		return err
	}
	user.FullName = args.FullName
	if args.Email != "" {
		user.Email = args.Email
	}
	if args.Phone != "" {
		user.Phone = args.Phone
	}
	if args.Company != "" {
		user.Company = args.Company
	}
	_, err = o.store.Users.Upsert(ctx, user)
	return err
}

func (o *Orchestrator) applyRecordBant(ctx context.Context, lead *models.LeadQualification, call agent.ToolCall) error {
	var patch models.BantData
	if err := json.Unmarshal(call.Arguments, &patch); err != nil {
		return errs.Validation(fmt.Sprintf("record_bant: invalid arguments: %v", err))
	}
	_, err := o.store.Leads.UpsertBant(ctx, lead.ID, patch)
	return err
}

func (o *Orchestrator) applyRecordRequirements(ctx context.Context, lead *models.LeadQualification, call agent.ToolCall) error {
	var args struct {
		AppType      string     `json:"app_type"`
		Deadline     *time.Time `json:"deadline"`
		Features     []string   `json:"features"`
		Integrations []string   `json:"integrations"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("record_requirements: invalid arguments: %v", err))
	}
	_, _, _, err := o.store.Leads.CreateRequirementPackage(ctx, lead.ID, args.AppType, args.Deadline, args.Features, args.Integrations)
	return err
}

func (o *Orchestrator) applyGetAvailableSlots(ctx context.Context, call agent.ToolCall, result *appliedEffects) error {
	var args struct {
		Date            string `json:"date"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("get_available_slots: invalid arguments: %v", err))
	}
	day, err := time.Parse("2006-01-02", args.Date)
	if err != nil {
		return errs.Validation(fmt.Sprintf("get_available_slots: invalid date: %v", err))
	}

	busy, err := o.calendar.GetSchedule(ctx, calendar.BusyWindow{
		Start: day,
		End:   day.Add(24 * time.Hour),
	})
	if err != nil {
		return err
	}
	slots := o.calendar.AvailableSlots(day, time.Duration(args.DurationMinutes)*time.Minute, busy)
	result.availableSlots = formatAvailableSlots(args.Date, slots)
	return nil
}

// formatAvailableSlots renders real calendar availability as a short note
// so the proposal the user sees (and the history the next turn reads) is
// grounded in the schedule instead of whatever the model guessed.
func formatAvailableSlots(date string, slots []calendar.Slot) string {
	if len(slots) == 0 {
		return fmt.Sprintf("(No open slots were found on %s.)", date)
	}
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, s.Start.Format("15:04"))
	}
	return fmt.Sprintf("(Open slots on %s: %s.)", date, strings.Join(times, ", "))
}

func (o *Orchestrator) applyScheduleMeeting(ctx context.Context, lead *models.LeadQualification, call agent.ToolCall) error {
	var args struct {
		Start         time.Time `json:"start"`
		End           time.Time `json:"end"`
		Subject       string    `json:"subject"`
		AttendeeEmail string    `json:"attendee_email"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("schedule_meeting: invalid arguments: %v", err))
	}

	externalID, joinURL, err := o.calendar.CreateEvent(ctx, calendar.CreateEventInput{
		Subject:   args.Subject,
		Start:     args.Start,
		End:       args.End,
		Attendees: []string{args.AttendeeEmail},
		Online:    true,
	})
	if err != nil {
		return err
	}

	meeting := &models.Meeting{
		UserID:              lead.UserID,
		LeadQualificationID: lead.ID,
		ExternalMeetingID:   externalID,
		Subject:             args.Subject,
		StartTime:           args.Start,
		EndTime:             args.End,
		Status:              models.MeetingScheduled,
		OnlineMeetingURL:    joinURL,
	}
	if !meeting.Valid() {
		return errs.Validation("schedule_meeting: start must precede end")
	}
	_, err = o.store.Meetings.Create(ctx, meeting)
	if err != nil {
		_ = o.calendar.CancelEvent(ctx, externalID)
		return err
	}
	o.events.Publish(lead.ConversationID, EventMeetingCreated, meeting)
	return nil
}

func (o *Orchestrator) applyCancelMeeting(ctx context.Context, call agent.ToolCall) error {
	var args struct {
		MeetingID string `json:"meeting_id"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errs.Validation(fmt.Sprintf("cancel_meeting: invalid arguments: %v", err))
	}

	meeting, err := o.store.Meetings.Get(ctx, args.MeetingID)
	if err != nil {
		return err
	}
	if meeting.ExternalMeetingID != "" {
		if err := o.calendar.CancelEvent(ctx, meeting.ExternalMeetingID); err != nil {
			return err
		}
	}
	if err := o.store.Meetings.Cancel(ctx, meeting.ID); err != nil {
		return err
	}
	convID := ""
	if lead, err := o.store.Leads.Get(ctx, meeting.LeadQualificationID); err == nil {
		convID = lead.ConversationID
	}
	o.events.Publish(convID, EventMeetingCancelled, meeting)
	return nil
}

func (o *Orchestrator) applyEndConversation(call agent.ToolCall, eff *qualification.Effects) error {
	var args struct {
		Reason string `json:"reason"`
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errs.Validation(fmt.Sprintf("end_conversation: invalid arguments: %v", err))
		}
	}
	if args.Reason == "" {
		args.Reason = "ended_by_agent"
	}
	eff.EndConversationReason = args.Reason
	return nil
}
