package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/internal/orchestrator"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

func calendarEventInput(subject string, start, end time.Time, attendeeEmail string) calendar.CreateEventInput {
	return calendar.CreateEventInput{
		Subject:   subject,
		Start:     start,
		End:       end,
		Attendees: []string{attendeeEmail},
		Online:    true,
	}
}

// router resolves a (resource, action) request, from either the WebSocket
// hub or the legacy REST facade, against C1/C2/C3/C9. Conversation- and
// message-level mutations that the agent itself would trigger stay in the
// orchestrator; this router only serves the operator-facing CRUD surface
// and dashboard queries.
type router struct {
	store     *store.Store
	calendar  orchestrator.CalendarClient
	messaging orchestrator.MessagingClient
	dashboard *dashboard.Service
	metrics   *dashboard.Metrics
	events    orchestrator.EventPublisher
	loc       *time.Location
}

func newRouter(st *store.Store, cal orchestrator.CalendarClient, msg orchestrator.MessagingClient, dash *dashboard.Service, loc *time.Location) *router {
	if loc == nil {
		loc = time.UTC
	}
	return &router{
		store:     st,
		calendar:  cal,
		messaging: msg,
		dashboard: dash,
		metrics:   dash.Metrics(),
		events:    noopEvents{},
		loc:       loc,
	}
}

// setPublisher wires the hub in as the event sink once it exists; router
// and hub are constructed in sequence (router first) to avoid a cyclic
// constructor dependency.
func (r *router) setPublisher(p orchestrator.EventPublisher) { r.events = p }

// leadConversationID returns the conversation a lead belongs to, the scope
// meeting events are published under, or "" when the lead cannot be loaded.
func (r *router) leadConversationID(ctx context.Context, leadID string) string {
	lead, err := r.store.Leads.Get(ctx, leadID)
	if err != nil {
		return ""
	}
	return lead.ConversationID
}

type noopEvents struct{}

func (noopEvents) Publish(string, string, any) {}

func (r *router) dispatch(ctx context.Context, resource string, p requestPayload) (any, error) {
	switch resource {
	case "users":
		return r.users(ctx, p)
	case "conversations":
		return r.conversations(ctx, p)
	case "messages":
		return r.messages(ctx, p)
	case "leads":
		return r.leads(ctx, p)
	case "meetings":
		return r.meetings(ctx, p)
	case "requirements":
		return r.requirements(ctx, p)
	case "dashboard":
		return r.dashboardAction(ctx, p)
	default:
		return nil, errs.Validation("unknown resource " + resource)
	}
}

func (r *router) users(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_by_id":
		if p.ID == "" {
			return nil, errs.Validation("users: get_by_id requires id")
		}
		return r.store.Users.Get(ctx, p.ID)
	default:
		return nil, errs.Validation("users: unsupported action " + p.Action)
	}
}

func (r *router) conversations(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_by_id":
		if p.ID == "" {
			return nil, errs.Validation("conversations: get_by_id requires id")
		}
		return r.store.Conversations.Get(ctx, p.ID)
	case "get_all":
		var filter struct {
			UserID string `json:"user_id"`
		}
		if len(p.Filter) > 0 {
			if err := json.Unmarshal(p.Filter, &filter); err != nil {
				return nil, errs.Validation("conversations: invalid filter")
			}
		}
		if filter.UserID == "" {
			return nil, errs.Validation("conversations: get_all requires filter.user_id")
		}
		return r.store.Conversations.List(ctx, filter.UserID)
	case "update":
		if p.ID == "" {
			return nil, errs.Validation("conversations: update requires id")
		}
		var patch struct {
			AgentEnabled *bool `json:"agent_enabled"`
			Close        bool  `json:"close"`
		}
		if err := json.Unmarshal(p.Data, &patch); err != nil {
			return nil, errs.Validation("conversations: invalid update payload")
		}
		conv, err := r.store.Conversations.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if patch.Close {
			if err := r.store.Conversations.Close(ctx, conv.ID); err != nil {
				return nil, err
			}
			conv.Status = models.ConversationClosed
		}
		if patch.AgentEnabled != nil {
			conv.AgentEnabled = *patch.AgentEnabled
		}
		updated, err := r.store.Conversations.Update(ctx, conv)
		if err != nil {
			return nil, err
		}
		r.events.Publish(updated.ID, orchestrator.EventConversationUpdated, updated)
		return updated, nil
	default:
		return nil, errs.Validation("conversations: unsupported action " + p.Action)
	}
}

func (r *router) messages(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_all":
		var filter struct {
			ConversationID string `json:"conversation_id"`
			Limit          int    `json:"limit"`
		}
		if len(p.Filter) > 0 {
			if err := json.Unmarshal(p.Filter, &filter); err != nil {
				return nil, errs.Validation("messages: invalid filter")
			}
		}
		if filter.ConversationID == "" {
			return nil, errs.Validation("messages: get_all requires filter.conversation_id")
		}
		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		return r.store.Messages.List(ctx, filter.ConversationID, limit)
	case "create":
		var args struct {
			ConversationID string `json:"conversation_id"`
			Content        string `json:"content"`
		}
		if err := json.Unmarshal(p.Data, &args); err != nil {
			return nil, errs.Validation("messages: invalid create payload")
		}
		if args.ConversationID == "" || args.Content == "" {
			return nil, errs.Validation("messages: create requires conversation_id and content")
		}
		conv, err := r.store.Conversations.Get(ctx, args.ConversationID)
		if err != nil {
			return nil, err
		}
		msg, err := r.store.Messages.Create(ctx, &models.Message{
			ConversationID: conv.ID,
			Role:           models.RoleSystem,
			Content:        args.Content,
			MessageType:    models.MessageText,
			Read:           true,
		})
		if err != nil {
			return nil, err
		}
		if _, sendErr := r.messaging.SendText(ctx, conv.ExternalID, args.Content); sendErr != nil {
			_ = r.store.Messages.MarkDeliveryFailed(ctx, msg.ID)
		}
		r.events.Publish(conv.ID, orchestrator.EventNewMessage, msg)
		return msg, nil
	case "delete":
		if p.ID == "" {
			return nil, errs.Validation("messages: delete requires id")
		}
		if err := r.store.Messages.SoftDelete(ctx, p.ID); err != nil {
			return nil, err
		}
		r.events.Publish("", orchestrator.EventMessageDeleted, map[string]string{"id": p.ID})
		return map[string]bool{"deleted": true}, nil
	default:
		return nil, errs.Validation("messages: unsupported action " + p.Action)
	}
}

func (r *router) leads(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_by_id":
		if p.ID == "" {
			return nil, errs.Validation("leads: get_by_id requires id")
		}
		return r.store.Leads.Get(ctx, p.ID)
	case "get_all":
		var filter struct {
			Step models.QualificationStep `json:"step"`
		}
		if len(p.Filter) > 0 {
			if err := json.Unmarshal(p.Filter, &filter); err != nil {
				return nil, errs.Validation("leads: invalid filter")
			}
		}
		if filter.Step == "" {
			return nil, errs.Validation("leads: get_all requires filter.step")
		}
		return r.store.Leads.ListByStep(ctx, filter.Step)
	default:
		return nil, errs.Validation("leads: unsupported action " + p.Action)
	}
}

func (r *router) meetings(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_by_id":
		if p.ID == "" {
			return nil, errs.Validation("meetings: get_by_id requires id")
		}
		return r.store.Meetings.Get(ctx, p.ID)
	case "get_all":
		return r.store.Meetings.ListToday(ctx, r.loc)
	case "create":
		var args struct {
			UserID              string    `json:"user_id"`
			LeadQualificationID string    `json:"lead_qualification_id"`
			Subject             string    `json:"subject"`
			AttendeeEmail       string    `json:"attendee_email"`
			Start               time.Time `json:"start"`
			End                 time.Time `json:"end"`
		}
		if err := json.Unmarshal(p.Data, &args); err != nil {
			return nil, errs.Validation("meetings: invalid create payload")
		}
		externalID, joinURL, err := r.calendar.CreateEvent(ctx, calendarEventInput(args.Subject, args.Start, args.End, args.AttendeeEmail))
		if err != nil {
			return nil, err
		}
		meeting := &models.Meeting{
			UserID:              args.UserID,
			LeadQualificationID: args.LeadQualificationID,
			ExternalMeetingID:   externalID,
			Subject:             args.Subject,
			StartTime:           args.Start,
			EndTime:             args.End,
			Status:              models.MeetingScheduled,
			OnlineMeetingURL:    joinURL,
		}
		if !meeting.Valid() {
			return nil, errs.Validation("meetings: start must precede end")
		}
		created, err := r.store.Meetings.Create(ctx, meeting)
		if err != nil {
			_ = r.calendar.CancelEvent(ctx, externalID)
			return nil, err
		}
		r.events.Publish(r.leadConversationID(ctx, created.LeadQualificationID), orchestrator.EventMeetingCreated, created)
		return created, nil
	case "update":
		if p.ID == "" {
			return nil, errs.Validation("meetings: update requires id")
		}
		var patch struct {
			Subject string     `json:"subject"`
			Start   *time.Time `json:"start"`
			End     *time.Time `json:"end"`
		}
		if err := json.Unmarshal(p.Data, &patch); err != nil {
			return nil, errs.Validation("meetings: invalid update payload")
		}
		meeting, err := r.store.Meetings.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if patch.Subject != "" {
			meeting.Subject = patch.Subject
		}
		if patch.Start != nil {
			meeting.StartTime = *patch.Start
		}
		if patch.End != nil {
			meeting.EndTime = *patch.End
		}
		if !meeting.Valid() {
			return nil, errs.Validation("meetings: start must precede end")
		}
		updated, err := r.store.Meetings.Update(ctx, meeting)
		if err != nil {
			return nil, err
		}
		r.events.Publish(r.leadConversationID(ctx, updated.LeadQualificationID), orchestrator.EventMeetingUpdated, updated)
		return updated, nil
	case "delete":
		if p.ID == "" {
			return nil, errs.Validation("meetings: delete requires id")
		}
		meeting, err := r.store.Meetings.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if meeting.ExternalMeetingID != "" {
			if err := r.calendar.CancelEvent(ctx, meeting.ExternalMeetingID); err != nil {
				return nil, err
			}
		}
		if err := r.store.Meetings.Cancel(ctx, meeting.ID); err != nil {
			return nil, err
		}
		r.events.Publish(r.leadConversationID(ctx, meeting.LeadQualificationID), orchestrator.EventMeetingCancelled, meeting)
		return map[string]bool{"cancelled": true}, nil
	default:
		return nil, errs.Validation("meetings: unsupported action " + p.Action)
	}
}

func (r *router) requirements(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_by_id":
		if p.ID == "" {
			return nil, errs.Validation("requirements: get_by_id requires the owning lead id")
		}
		reqs, features, integrations, err := r.store.Leads.GetRequirements(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"requirements": reqs,
			"features":     features,
			"integrations": integrations,
		}, nil
	default:
		return nil, errs.Validation("requirements: unsupported action " + p.Action)
	}
}

func (r *router) dashboardAction(ctx context.Context, p requestPayload) (any, error) {
	switch p.Action {
	case "get_dashboard_stats":
		return r.dashboard.DashboardStats(ctx)
	case "get_conversion_funnel":
		return r.dashboard.ConversionFunnel(ctx)
	case "get_lead_pipeline":
		return r.dashboard.LeadPipeline(ctx)
	case "get_conversion_stats":
		return r.dashboard.ConversionStats(ctx)
	case "get_abandoned_leads":
		return r.dashboard.AbandonedLeads(ctx)
	case "get_activity_timeline":
		var args struct {
			WindowSeconds int `json:"window_seconds"`
		}
		if len(p.Filter) > 0 {
			_ = json.Unmarshal(p.Filter, &args)
		}
		return r.dashboard.ActivityTimeline(ctx, time.Duration(args.WindowSeconds)*time.Second)
	case "get_agent_performance":
		var args struct {
			WindowSeconds int `json:"window_seconds"`
		}
		if len(p.Filter) > 0 {
			_ = json.Unmarshal(p.Filter, &args)
		}
		return r.dashboard.AgentPerformance(time.Duration(args.WindowSeconds) * time.Second), nil
	case "get_real_time_metrics":
		return r.dashboard.RealTimeMetrics(), nil
	default:
		return nil, errs.Validation("dashboard: unsupported action " + p.Action)
	}
}
