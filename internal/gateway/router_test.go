package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

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

func newTestRouter(t *testing.T) (*router, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	dash := dashboard.New(st, nil, nil, nil)
	r := newRouter(st, fakeCalendar{}, &fakeMessaging{}, dash, nil)
	return r, st
}

func TestValidateRequestFrame_RejectsMissingAction(t *testing.T) {
	raw := []byte(`{"type":"request","id":"1","resource":"users","payload":{}}`)
	if err := validateRequestFrame(raw); err == nil {
		t.Fatal("expected validation error for payload missing action")
	}
}

func TestValidateRequestFrame_AcceptsWellFormedRequest(t *testing.T) {
	raw := []byte(`{"type":"request","id":"1","resource":"users","payload":{"action":"get_by_id","id":"u1"}}`)
	if err := validateRequestFrame(raw); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}
}

func TestRouter_UsersGetByID(t *testing.T) {
	r, st := newTestRouter(t)
	user, err := st.Users.Upsert(context.Background(), &models.User{Phone: "+15551234567", FullName: "Ada"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	result, err := r.dispatch(context.Background(), "users", requestPayload{Action: "get_by_id", ID: user.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got, ok := result.(*models.User)
	if !ok || got.ID != user.ID {
		t.Fatalf("expected user %s, got %+v", user.ID, result)
	}
}

func TestRouter_UsersGetByID_RequiresID(t *testing.T) {
	r, _ := newTestRouter(t)
	if _, err := r.dispatch(context.Background(), "users", requestPayload{Action: "get_by_id"}); err == nil {
		t.Fatal("expected error when id is missing")
	}
}

func TestRouter_ConversationsUpdate_TogglesAgentEnabled(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15550000000"})
	conv, err := st.Conversations.Create(ctx, &models.Conversation{
		UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-1", AgentEnabled: true,
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	patch, _ := json.Marshal(map[string]any{"agent_enabled": false})
	result, err := r.dispatch(ctx, "conversations", requestPayload{Action: "update", ID: conv.ID, Data: patch})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	updated := result.(*models.Conversation)
	if updated.AgentEnabled {
		t.Fatal("expected agent_enabled to be false after update")
	}
}

func TestRouter_MessagesCreate_SendsAndPersists(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15550000001"})
	conv, _ := st.Conversations.Create(ctx, &models.Conversation{
		UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-2", AgentEnabled: true,
	})

	data, _ := json.Marshal(map[string]any{"conversation_id": conv.ID, "content": "we'll follow up shortly"})
	result, err := r.dispatch(ctx, "messages", requestPayload{Action: "create", Data: data})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	msg := result.(*models.Message)
	if msg.Content != "we'll follow up shortly" {
		t.Fatalf("unexpected message content %q", msg.Content)
	}

	listed, err := st.Messages.List(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(listed))
	}
}

func TestRouter_MeetingsCreate_SchedulesViaCalendar(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15550000002"})
	conv, _ := st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-3"})
	lead, _ := st.Leads.Create(ctx, &models.LeadQualification{UserID: user.ID, ConversationID: conv.ID})

	start := time.Now().Add(24 * time.Hour)
	end := start.Add(30 * time.Minute)
	data, _ := json.Marshal(map[string]any{
		"user_id": user.ID, "lead_qualification_id": lead.ID,
		"subject": "Intro call", "attendee_email": "lead@example.com",
		"start": start, "end": end,
	})

	result, err := r.dispatch(ctx, "meetings", requestPayload{Action: "create", Data: data})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	meeting := result.(*models.Meeting)
	if meeting.ExternalMeetingID != "ext-evt-1" {
		t.Fatalf("expected calendar external id, got %q", meeting.ExternalMeetingID)
	}
}

func TestRouter_DashboardGetStats(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15550000003"})
	st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-4"})

	result, err := r.dispatch(ctx, "dashboard", requestPayload{Action: "get_dashboard_stats"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	stats := result.(*dashboard.Stats)
	if stats.TotalUsers != 1 {
		t.Fatalf("expected 1 user, got %d", stats.TotalUsers)
	}
}

func TestRouter_UnknownResource(t *testing.T) {
	r, _ := newTestRouter(t)
	if _, err := r.dispatch(context.Background(), "widgets", requestPayload{Action: "get_all"}); err == nil {
		t.Fatal("expected error for unknown resource")
	}
}
