package store

import (
	"context"
	"testing"
	"time"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

func TestMemory_UpsertUserAndOpenConversation_IsIdempotentPerParty(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	party := PartyInfo{Platform: models.PlatformWhatsApp, ExternalID: "+15551234567", Phone: "+15551234567", FullName: "Ada Lovelace"}

	user1, conv1, lead1, err := st.Tx.UpsertUserAndOpenConversation(ctx, party)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if conv1.Status != models.ConversationActive {
		t.Fatalf("expected new conversation to be active, got %s", conv1.Status)
	}

	user2, conv2, lead2, err := st.Tx.UpsertUserAndOpenConversation(ctx, party)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if user2.ID != user1.ID {
		t.Fatalf("expected same user to be reused, got %s vs %s", user2.ID, user1.ID)
	}
	if conv2.ID != conv1.ID {
		t.Fatalf("expected the existing active conversation to be reused, got %s vs %s", conv2.ID, conv1.ID)
	}
	if lead2.ID != lead1.ID {
		t.Fatalf("expected the existing lead to be reused, got %s vs %s", lead2.ID, lead1.ID)
	}
}

func TestMemory_ConversationCreate_RejectsSecondActiveConversationForSameParty(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	user, err := st.Users.Upsert(ctx, &models.User{Phone: "+15550000000"})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	first := &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-1"}
	if _, err := st.Conversations.Create(ctx, first); err != nil {
		t.Fatalf("create first conversation: %v", err)
	}

	second := &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-1"}
	_, err = st.Conversations.Create(ctx, second)
	if !errs.Is(err, errs.KindConstraintViolation) {
		t.Fatalf("expected a constraint violation for a second active conversation, got %v", err)
	}
}

func TestMemory_ConversationCreate_AllowsNewActiveConversationAfterClose(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Email: "lead@example.com"})

	first, err := st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWeb, ExternalID: "sess-1"})
	if err != nil {
		t.Fatalf("create first conversation: %v", err)
	}
	if err := st.Conversations.Close(ctx, first.ID); err != nil {
		t.Fatalf("close conversation: %v", err)
	}

	second, err := st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWeb, ExternalID: "sess-1"})
	if err != nil {
		t.Fatalf("expected a new active conversation to be allowed after close, got %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a distinct conversation row")
	}
}

func TestMemory_LeadCreate_IsIdempotentPerUserAndConversation(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15551112222"})
	conv, _ := st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "ext-2"})

	lead1, err := st.Leads.Create(ctx, &models.LeadQualification{UserID: user.ID, ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if lead1.CurrentStep != models.StepStart {
		t.Fatalf("expected a new lead to start at StepStart, got %s", lead1.CurrentStep)
	}

	lead2, err := st.Leads.Create(ctx, &models.LeadQualification{UserID: user.ID, ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("re-create lead: %v", err)
	}
	if lead2.ID != lead1.ID {
		t.Fatal("expected the existing lead to be returned rather than duplicated")
	}
}

func TestMemory_MeetingCreate_RejectsSecondNonCancelledMeetingForSameLead(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	start := time.Now().Add(time.Hour)
	end := start.Add(30 * time.Minute)

	_, err := st.Meetings.Create(ctx, &models.Meeting{LeadQualificationID: "lead-1", StartTime: start, EndTime: end})
	if err != nil {
		t.Fatalf("create first meeting: %v", err)
	}
	_, err = st.Meetings.Create(ctx, &models.Meeting{LeadQualificationID: "lead-1", StartTime: start.Add(time.Hour), EndTime: end.Add(time.Hour)})
	if !errs.Is(err, errs.KindConstraintViolation) {
		t.Fatalf("expected a constraint violation for a second active meeting, got %v", err)
	}
}

func TestMemory_MeetingCreate_AllowsNewMeetingAfterCancel(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	start := time.Now().Add(time.Hour)
	end := start.Add(30 * time.Minute)

	first, err := st.Meetings.Create(ctx, &models.Meeting{LeadQualificationID: "lead-2", StartTime: start, EndTime: end})
	if err != nil {
		t.Fatalf("create first meeting: %v", err)
	}
	if err := st.Meetings.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel meeting: %v", err)
	}
	if _, err := st.Meetings.Create(ctx, &models.Meeting{LeadQualificationID: "lead-2", StartTime: start.Add(time.Hour), EndTime: end.Add(time.Hour)}); err != nil {
		t.Fatalf("expected a new meeting to be allowed after cancel, got %v", err)
	}
}

func TestMemory_MeetingCreate_RejectsInvalidTimeRange(t *testing.T) {
	st := NewMemory()
	start := time.Now()
	_, err := st.Meetings.Create(context.Background(), &models.Meeting{LeadQualificationID: "lead-3", StartTime: start, EndTime: start.Add(-time.Minute)})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected a validation error for start after end, got %v", err)
	}
}

func TestMemory_MessageCreate_DedupesByExternalIDPerConversation(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	msg := &models.Message{ConversationID: "conv-1", Role: models.RoleUser, ExternalID: "wamid.1", Content: "hello"}

	first, err := st.Messages.Create(ctx, msg)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	second, err := st.Messages.Create(ctx, &models.Message{ConversationID: "conv-1", Role: models.RoleUser, ExternalID: "wamid.1", Content: "hello again"})
	if err != nil {
		t.Fatalf("re-create message: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("expected duplicate external_id to return the existing message")
	}
	if second.Content != "hello" {
		t.Fatalf("expected the original body to be preserved, got %q", second.Content)
	}
}

func TestMemory_ListTrailingNonSystem_BoundsHistoryAndKeepsSystemPreamble(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	const conversationID = "conv-2"

	if _, err := st.Messages.Create(ctx, &models.Message{ConversationID: conversationID, Role: models.RoleSystem, Content: "system preamble"}); err != nil {
		t.Fatalf("create system message: %v", err)
	}
	for i := 0; i < 5; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := st.Messages.Create(ctx, &models.Message{ConversationID: conversationID, Role: role, Content: "turn"}); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	trailing, err := st.Messages.ListTrailingNonSystem(ctx, conversationID, 3)
	if err != nil {
		t.Fatalf("list trailing: %v", err)
	}
	if len(trailing) != 4 {
		t.Fatalf("expected 1 system message + 3 trailing, got %d", len(trailing))
	}
	if trailing[0].Role != models.RoleSystem {
		t.Fatalf("expected the system preamble first, got role %s", trailing[0].Role)
	}
	for _, m := range trailing[1:] {
		if m.Role == models.RoleSystem {
			t.Fatal("expected no additional system messages among the trailing window")
		}
	}
}

func TestMemory_MessageSoftDelete_ExcludesFromListAndDedup(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	msg, err := st.Messages.Create(ctx, &models.Message{ConversationID: "conv-3", Role: models.RoleUser, ExternalID: "wamid.2", Content: "hi"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := st.Messages.SoftDelete(ctx, msg.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	list, err := st.Messages.List(ctx, "conv-3", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected soft-deleted message to be excluded, got %d", len(list))
	}

	again, err := st.Messages.Create(ctx, &models.Message{ConversationID: "conv-3", Role: models.RoleUser, ExternalID: "wamid.2", Content: "hi again"})
	if err != nil {
		t.Fatalf("re-create message with same external_id: %v", err)
	}
	if again.ID == msg.ID {
		t.Fatal("expected a soft-deleted message's external_id to no longer dedupe")
	}
}

func TestMemory_BantUpsert_MergesWithoutClobberingExistingFields(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	const leadID = "lead-4"

	if _, err := st.Leads.UpsertBant(ctx, leadID, models.BantData{Budget: "50k", Need: "automation"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	bant, err := st.Leads.UpsertBant(ctx, leadID, models.BantData{Authority: "CTO"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if bant.Budget != "50k" || bant.Need != "automation" || bant.Authority != "CTO" {
		t.Fatalf("expected merged bant fields, got %+v", bant)
	}
}

func TestMemory_CreateRequirementPackage_ReplacesFeaturesAndIntegrations(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	const leadID = "lead-5"

	if _, _, _, err := st.Leads.CreateRequirementPackage(ctx, leadID, "mobile", nil, []string{"push notifications"}, []string{"stripe"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	req, features, integrations, err := st.Leads.CreateRequirementPackage(ctx, leadID, "web", nil, []string{"sso", "reporting"}, nil)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if req.AppType != "web" {
		t.Fatalf("expected app_type to be updated, got %q", req.AppType)
	}
	if len(features) != 2 {
		t.Fatalf("expected the feature set to be replaced with 2 entries, got %d", len(features))
	}
	if len(integrations) != 0 {
		t.Fatalf("expected the integration set to be replaced with 0 entries, got %d", len(integrations))
	}
}

func TestMemory_Stats_ReflectCurrentState(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	user, _ := st.Users.Upsert(ctx, &models.User{Phone: "+15559998888"})
	if _, err := st.Conversations.Create(ctx, &models.Conversation{UserID: user.ID, Platform: models.PlatformWhatsApp, ExternalID: "stat-1"}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	users, err := st.Stats.CountUsers(ctx)
	if err != nil || users != 1 {
		t.Fatalf("expected 1 user, got %d (err=%v)", users, err)
	}
	active, err := st.Stats.CountActiveConversations(ctx)
	if err != nil || active != 1 {
		t.Fatalf("expected 1 active conversation, got %d (err=%v)", active, err)
	}
}
