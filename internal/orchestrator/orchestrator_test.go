package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tdxcore/leadqualifier/internal/agent"
	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/messaging"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// fakeProvider returns a scripted Turn for each call, in order.
type fakeProvider struct {
	turns []*agent.CompletionResult
	calls int
}

func (f *fakeProvider) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.CompletionResult, error) {
	if f.calls >= len(f.turns) {
		return &agent.CompletionResult{Text: "..."}, nil
	}
	r := f.turns[f.calls]
	f.calls++
	return r, nil
}

type fakeEvents struct {
	published []string
}

func (f *fakeEvents) Publish(conversationID, eventType string, data any) {
	f.published = append(f.published, eventType)
}

type fakeCalendar struct{}

func (fakeCalendar) GetSchedule(ctx context.Context, w calendar.BusyWindow) ([]models.BusyInterval, error) {
	return nil, nil
}
func (fakeCalendar) AvailableSlots(day time.Time, d time.Duration, busy []models.BusyInterval) []calendar.Slot {
	return nil
}
func (fakeCalendar) CreateEvent(ctx context.Context, in calendar.CreateEventInput) (string, string, error) {
	return "ext-evt-1", "https://meet.example/abc", nil
}
func (fakeCalendar) CancelEvent(ctx context.Context, externalID string) error { return nil }

type fakeMessaging struct {
	sent []string
}

func (f *fakeMessaging) SendText(ctx context.Context, to, body string) (string, error) {
	f.sent = append(f.sent, body)
	return "wamid.1", nil
}

func newTestOrchestrator(t *testing.T, provider *fakeProvider) (*Orchestrator, *store.Store, *fakeEvents, *fakeMessaging) {
	t.Helper()
	st := store.NewMemory()
	runtime := agent.NewRuntime(provider, "test-model")
	events := &fakeEvents{}
	msg := &fakeMessaging{}
	o := New(st, fakeCalendar{}, msg, runtime, events, config.AgentConfig{HistoryWindow: 10, TurnTimeout: 5 * time.Second}, nil)
	return o, st, events, msg
}

func seedConversation(t *testing.T, st *store.Store, step models.QualificationStep) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	user, conv, lead, err := st.Tx.UpsertUserAndOpenConversation(ctx, store.PartyInfo{
		Platform:   models.PlatformWhatsApp,
		ExternalID: "+15551234567",
		Phone:      "+15551234567",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = user
	if step != "" && step != models.StepStart {
		if _, err := st.Leads.SetStep(ctx, lead.ID, step); err != nil {
			t.Fatalf("seed step: %v", err)
		}
	}
	return conv
}

func TestHandleInbound_IdempotentOnDuplicateExternalID(t *testing.T) {
	provider := &fakeProvider{turns: []*agent.CompletionResult{{Text: "hello"}}}
	o, st, _, msgClient := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepStart)

	in := InboundMessage{ConversationID: conv.ID, ExternalID: "wamid.dup", Content: "hi"}
	if err := o.HandleInbound(context.Background(), in); err != nil {
		t.Fatalf("first inbound: %v", err)
	}
	if err := o.HandleInbound(context.Background(), in); err != nil {
		t.Fatalf("duplicate inbound: %v", err)
	}

	msgs, err := st.Messages.List(context.Background(), conv.ID, 100)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	userMsgs := 0
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			userMsgs++
		}
	}
	if userMsgs != 1 {
		t.Fatalf("expected exactly one persisted user message after duplicate delivery, got %d", userMsgs)
	}
	if len(msgClient.sent) != 1 {
		t.Fatalf("expected exactly one assistant reply sent, got %d", len(msgClient.sent))
	}
}

func TestHandleInbound_AgentDisabledShortCircuits(t *testing.T) {
	provider := &fakeProvider{turns: []*agent.CompletionResult{{Text: "should not be used"}}}
	o, st, _, msgClient := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepStart)
	conv.AgentEnabled = false
	if _, err := st.Conversations.Update(context.Background(), conv); err != nil {
		t.Fatalf("disable agent: %v", err)
	}

	in := InboundMessage{ConversationID: conv.ID, ExternalID: "wamid.1", Content: "hi"}
	if err := o.HandleInbound(context.Background(), in); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if len(msgClient.sent) != 0 {
		t.Fatalf("expected no assistant reply while agent is disabled, got %d", len(msgClient.sent))
	}
}

func TestHandleInbound_ConsentToolAdvancesStage(t *testing.T) {
	consentArgs, _ := json.Marshal(map[string]any{"consent": true})
	provider := &fakeProvider{turns: []*agent.CompletionResult{{
		Text: "Great, let's continue.",
		ToolCalls: []agent.ToolCall{
			{ID: "call-1", Name: agent.ToolRecordConsent, Arguments: consentArgs},
		},
	}}}
	o, st, events, _ := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepConsent)

	in := InboundMessage{ConversationID: conv.ID, ExternalID: "wamid.2", Content: "yes I consent"}
	if err := o.HandleInbound(context.Background(), in); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	lead, err := st.Leads.GetByConversation(context.Background(), conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.CurrentStep != models.StepPersonalData {
		t.Fatalf("expected personal_data after consent, got %s", lead.CurrentStep)
	}

	found := false
	for _, e := range events.published {
		if e == EventLeadStageChanged {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a lead_stage_changed event to be published")
	}
}

func TestHandleInbound_ScheduleMeetingPersistsAndPublishes(t *testing.T) {
	args, _ := json.Marshal(map[string]any{
		"start":          time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC),
		"end":            time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC),
		"subject":        "Discovery call",
		"attendee_email": "lead@example.com",
	})
	provider := &fakeProvider{turns: []*agent.CompletionResult{{
		Text: "Booked!",
		ToolCalls: []agent.ToolCall{
			{ID: "call-1", Name: agent.ToolScheduleMeeting, Arguments: args},
		},
	}}}
	o, st, events, _ := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepMeeting)

	in := InboundMessage{ConversationID: conv.ID, ExternalID: "wamid.3", Content: "book it"}
	if err := o.HandleInbound(context.Background(), in); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	lead, err := st.Leads.GetByConversation(context.Background(), conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	meeting, err := st.Meetings.GetActiveForLead(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("get meeting: %v", err)
	}
	if meeting == nil || meeting.Status != models.MeetingScheduled {
		t.Fatalf("expected a scheduled meeting to be persisted")
	}
	if lead.CurrentStep != models.StepCompleted {
		t.Fatalf("expected completed after meeting scheduled, got %s", lead.CurrentStep)
	}

	foundMeetingEvent := false
	for _, e := range events.published {
		if e == EventMeetingCreated {
			foundMeetingEvent = true
		}
	}
	if !foundMeetingEvent {
		t.Fatalf("expected a meeting_created event to be published")
	}
}

func TestHandleInbound_SingleRefusalStaysAtConsentForReprompt(t *testing.T) {
	noArgs, _ := json.Marshal(map[string]any{"consent": false})
	provider := &fakeProvider{turns: []*agent.CompletionResult{
		{Text: "no worries, can I ask again?", ToolCalls: []agent.ToolCall{{ID: "1", Name: agent.ToolRecordConsent, Arguments: noArgs}}},
	}}
	o, st, _, _ := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepConsent)

	if err := o.HandleInbound(context.Background(), InboundMessage{ConversationID: conv.ID, ExternalID: "a", Content: "no"}); err != nil {
		t.Fatalf("first refusal: %v", err)
	}

	lead, err := st.Leads.GetByConversation(context.Background(), conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.CurrentStep != models.StepConsent {
		t.Fatalf("expected a lone refusal to stay at consent for a re-prompt, got %s", lead.CurrentStep)
	}
}

func TestHandleInbound_TwoConsecutiveRefusalsAbandonsLead(t *testing.T) {
	noArgs, _ := json.Marshal(map[string]any{"consent": false})
	provider := &fakeProvider{turns: []*agent.CompletionResult{
		{Text: "ok", ToolCalls: []agent.ToolCall{{ID: "1", Name: agent.ToolRecordConsent, Arguments: noArgs}}},
		{Text: "ok", ToolCalls: []agent.ToolCall{{ID: "2", Name: agent.ToolRecordConsent, Arguments: noArgs}}},
	}}
	o, st, _, _ := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepConsent)

	if err := o.HandleInbound(context.Background(), InboundMessage{ConversationID: conv.ID, ExternalID: "a", Content: "no"}); err != nil {
		t.Fatalf("first refusal: %v", err)
	}
	leadAfterFirst, err := st.Leads.GetByConversation(context.Background(), conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead after first refusal: %v", err)
	}
	if leadAfterFirst.CurrentStep != models.StepConsent {
		t.Fatalf("expected the first refusal to stay at consent, got %s", leadAfterFirst.CurrentStep)
	}

	if err := o.HandleInbound(context.Background(), InboundMessage{ConversationID: conv.ID, ExternalID: "b", Content: "still no"}); err != nil {
		t.Fatalf("second refusal: %v", err)
	}

	lead, err := st.Leads.GetByConversation(context.Background(), conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.CurrentStep != models.StepAbandoned {
		t.Fatalf("expected abandoned after two consecutive refusals, got %s", lead.CurrentStep)
	}
}

func TestSweep_AbandonsStaleLeads(t *testing.T) {
	provider := &fakeProvider{}
	o, st, events, _ := newTestOrchestrator(t, provider)
	conv := seedConversation(t, st, models.StepBant)

	// Seed one user message; the negative window below puts it outside
	// the abandonment window without backdating it.
	ctx := context.Background()
	if err := o.HandleInbound(ctx, InboundMessage{ConversationID: conv.ID, ExternalID: "old-1", Content: "hello"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	n, err := o.Sweep(ctx, -1*time.Hour) // everything looks "stale" with a negative window
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected at least one lead to be swept")
	}

	lead, err := st.Leads.GetByConversation(ctx, conv.UserID, conv.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.CurrentStep != models.StepAbandoned {
		t.Fatalf("expected abandoned after sweep, got %s", lead.CurrentStep)
	}

	found := false
	for _, e := range events.published {
		if e == EventLeadStageChanged {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sweep to publish lead_stage_changed")
	}
}
