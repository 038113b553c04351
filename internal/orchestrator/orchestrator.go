// Package orchestrator is the C6 Conversation Orchestrator: the heart of
// the system. It serializes processing per conversation and runs the
// eight-step turn protocol on every inbound user message.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tdxcore/leadqualifier/internal/agent"
	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/internal/messaging"
	"github.com/tdxcore/leadqualifier/internal/qualification"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// InboundMessage is one fragment C7 hands off, keyed by conversation id.
type InboundMessage struct {
	ConversationID string
	ExternalID     string
	Content        string
	MessageType    models.MessageType
	MediaURL       string
}

// CalendarClient is the subset of the C2 Calendar Client the orchestrator
// depends on; *calendar.Client satisfies it. Narrowed to an interface here
// so turn-protocol tests can substitute a fake instead of talking to a
// real Graph endpoint.
type CalendarClient interface {
	GetSchedule(ctx context.Context, window calendar.BusyWindow) ([]models.BusyInterval, error)
	AvailableSlots(day time.Time, duration time.Duration, busy []models.BusyInterval) []calendar.Slot
	CreateEvent(ctx context.Context, in calendar.CreateEventInput) (externalID, joinURL string, err error)
	CancelEvent(ctx context.Context, externalID string) error
}

// MessagingClient is the subset of the C3 Messaging Client the orchestrator
// depends on; *messaging.Client satisfies it.
type MessagingClient interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Orchestrator implements the turn protocol described in spec.md §4.6.
type Orchestrator struct {
	store     *store.Store
	calendar  CalendarClient
	messaging MessagingClient
	runtime   *agent.Runtime
	events    EventPublisher
	logger    *slog.Logger
	metrics   *dashboard.Metrics

	historyWindow int
	turnTimeout   time.Duration

	mailboxes *mailboxRegistry

	refusalsMu sync.Mutex
	refusals   map[string]int // lead id -> consecutive consent refusals
}

// New builds an Orchestrator wiring every collaborator component.
func New(st *store.Store, cal CalendarClient, msg MessagingClient, runtime *agent.Runtime, events EventPublisher, agentCfg config.AgentConfig, logger *slog.Logger) *Orchestrator {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	window := agentCfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	timeout := agentCfg.TurnTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		store:         st,
		calendar:      cal,
		messaging:     msg,
		runtime:       runtime,
		events:        events,
		logger:        logger.With("component", "orchestrator"),
		historyWindow: window,
		turnTimeout:   timeout,
		mailboxes:     newMailboxRegistry(),
		refusals:      map[string]int{},
	}
}

// SetMetrics attaches the C9 metrics recorder so every turn's latency,
// outcome, and tool calls feed get_agent_performance/get_real_time_metrics.
// Safe to leave unset; all recording calls are nil-guarded.
func (o *Orchestrator) SetMetrics(m *dashboard.Metrics) { o.metrics = m }

// HandleInbound runs the full turn protocol for one inbound user message,
// serialized against any other in-flight turn for the same conversation.
func (o *Orchestrator) HandleInbound(ctx context.Context, in InboundMessage) error {
	return o.mailboxes.submit(in.ConversationID, func() error {
		return o.runTurn(ctx, in)
	})
}

func (o *Orchestrator) runTurn(ctx context.Context, in InboundMessage) (err error) {
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	if o.metrics != nil {
		o.metrics.IncInFlightConversations()
		start := time.Now()
		defer func() {
			o.metrics.DecInFlightConversations()
			o.metrics.RecordTurn(time.Since(start), err != nil)
		}()
	}

	// Step 1: append the inbound message, idempotent on external_id.
	existing, err := o.store.Messages.GetByExternalID(ctx, in.ConversationID, in.ExternalID)
	if err == nil && existing != nil {
		return nil // idempotent drop: already processed
	}
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageText
	}
	inboundMsg, err := o.store.Messages.Create(ctx, &models.Message{
		ConversationID: in.ConversationID,
		Role:           models.RoleUser,
		Content:        in.Content,
		MessageType:    msgType,
		MediaURL:       in.MediaURL,
		ExternalID:     in.ExternalID,
		Read:           false,
	})
	if err != nil {
		return err
	}
	o.events.Publish(in.ConversationID, EventNewMessage, inboundMsg)

	// Step 2: load conversation, lead, and supporting state.
	conv, err := o.store.Conversations.Get(ctx, in.ConversationID)
	if err != nil {
		return err
	}
	lead, err := o.store.Leads.GetByConversation(ctx, conv.UserID, conv.ID)
	if err != nil {
		return err
	}

	// Step 3: an operator-silenced conversation just gets the event.
	if !conv.AgentEnabled {
		return nil
	}

	history, err := o.store.Messages.ListTrailingNonSystem(ctx, conv.ID, o.historyWindow)
	if err != nil {
		return err
	}

	// Step 4: invoke the agent runtime with the stage-gated tool catalogue.
	turn, err := o.runtime.Advance(ctx, toAgentMessages(history), lead)
	if err != nil {
		return fmt.Errorf("orchestrator: agent advance: %w", err)
	}

	// Step 5: apply every tool invocation via C1/C2, in order.
	applyResult := o.applyTools(ctx, conv, lead, turn.ToolInvocations)

	// Step 6: recompute and persist the stage.
	if err := o.recomputeStage(ctx, conv, lead, applyResult); err != nil {
		return err
	}

	// Step 7: dispatch the assistant's reply, if any.
	assistantText := turn.AssistantText
	if applyResult.availableSlots != "" {
		if assistantText != "" {
			assistantText = assistantText + "\n\n" + applyResult.availableSlots
		} else {
			assistantText = applyResult.availableSlots
		}
	}
	if applyResult.failureNotice != "" {
		if assistantText != "" {
			assistantText = assistantText + "\n\n" + applyResult.failureNotice
		} else {
			assistantText = applyResult.failureNotice
		}
	}
	if assistantText != "" {
		if err := o.dispatchAssistantReply(ctx, conv, assistantText); err != nil {
			return err
		}
	}

	o.events.Publish(conv.ID, EventConversationUpdated, conv)
	return nil
}

func (o *Orchestrator) dispatchAssistantReply(ctx context.Context, conv *models.Conversation, text string) error {
	assistantMsg, err := o.store.Messages.Create(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        text,
		MessageType:    models.MessageText,
		Read:           true,
	})
	if err != nil {
		return err
	}

	to := conv.ExternalID
	if _, sendErr := o.messaging.SendText(ctx, to, text); sendErr != nil {
		var deliveryFailure *messaging.DeliveryFailure
		if isDeliveryFailure(sendErr, &deliveryFailure) {
			_ = o.store.Messages.MarkDeliveryFailed(ctx, assistantMsg.ID)
		} else {
			return sendErr
		}
	}

	o.events.Publish(conv.ID, EventNewMessage, assistantMsg)
	return nil
}

func isDeliveryFailure(err error, target **messaging.DeliveryFailure) bool {
	df, ok := err.(*messaging.DeliveryFailure)
	if ok {
		*target = df
	}
	return ok
}

func toAgentMessages(history []*models.Message) []agent.Message {
	out := make([]agent.Message, 0, len(history))
	for _, m := range history {
		role := string(m.Role)
		out = append(out, agent.Message{Role: role, Content: m.Content})
	}
	return out
}

func (o *Orchestrator) recomputeStage(ctx context.Context, conv *models.Conversation, lead *models.LeadQualification, applied appliedEffects) error {
	user, err := o.store.Users.Get(ctx, conv.UserID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	bant, err := o.store.Leads.GetBant(ctx, lead.ID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	requirements, features, _, err := o.store.Leads.GetRequirements(ctx, lead.ID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	meeting, err := o.store.Meetings.GetActiveForLead(ctx, lead.ID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	latest, found, err := o.store.Messages.LatestUserMessageAt(ctx, lead.ID)
	if err != nil {
		return err
	}

	next := qualification.Next(qualification.Input{
		Lead:               lead,
		User:               user,
		Bant:               bant,
		Requirements:       requirements,
		HasFeature:         len(features) > 0,
		Meeting:            meeting,
		LastUserMessageAt:  latestOrZero(latest, found),
		Now:                time.Now().UTC(),
	}, applied.effects)

	if next != lead.CurrentStep {
		if _, err := o.store.Leads.SetStep(ctx, lead.ID, next); err != nil {
			return err
		}
		o.events.Publish(conv.ID, EventLeadStageChanged, map[string]any{
			"lead_id": lead.ID, "from": lead.CurrentStep, "to": next,
		})
	}
	return nil
}

func latestOrZero(t time.Time, found bool) time.Time {
	if !found {
		return time.Time{}
	}
	return t
}

// Sweep implements the timeout sweep: leads whose latest user message
// predates AbandonAfter are moved to abandoned. Intended to be invoked by
// a cron-driven scheduler at most every 15 minutes.
func (o *Orchestrator) Sweep(ctx context.Context, abandonAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-abandonAfter)
	stale, err := o.store.Leads.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, lead := range stale {
		if _, err := o.store.Leads.SetStep(ctx, lead.ID, models.StepAbandoned); err != nil {
			return 0, err
		}
		o.events.Publish(lead.ConversationID, EventLeadStageChanged, map[string]any{
			"lead_id": lead.ID, "from": lead.CurrentStep, "to": models.StepAbandoned,
		})
	}
	return len(stale), nil
}
