package agent

import (
	"context"
	"fmt"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

// Turn is everything one C4.advance call produces: text for the user plus
// any tool invocations C6 must apply. The runtime never mutates persistent
// state itself — every effect travels back through the Turn.
type Turn struct {
	AssistantText   string
	ToolInvocations []ToolCall
}

// Runtime wraps a Provider with the system preamble and stage-gated tool
// catalogue spec.md §4.4 describes.
type Runtime struct {
	provider Provider
	model    string
}

// NewRuntime builds a Runtime over the given Provider.
func NewRuntime(provider Provider, model string) *Runtime {
	return &Runtime{provider: provider, model: model}
}

// Advance is the C4 contract: conversation_history, lead_state,
// available_tools -> Turn. history is the bounded window C1 already
// trimmed to N non-system messages plus one system preamble; Advance does
// not itself enforce the window.
func (r *Runtime) Advance(ctx context.Context, history []Message, lead *models.LeadQualification) (*Turn, error) {
	if lead == nil {
		return nil, fmt.Errorf("agent: advance requires a non-nil lead")
	}

	req := CompletionRequest{
		Model:    r.model,
		System:   systemPreamble(lead.CurrentStep),
		Messages: history,
		Tools:    ToolsForStage(lead.CurrentStep),
	}

	result, err := r.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Turn{
		AssistantText:   result.Text,
		ToolInvocations: result.ToolCalls,
	}, nil
}

func systemPreamble(step models.QualificationStep) string {
	base := "You are a lead-qualification assistant for a software consultancy. " +
		"Guide the user conversationally through consent, personal details, " +
		"budget/authority/need/timeline, project requirements, and meeting " +
		"scheduling, one topic at a time. Only call a tool once the user has " +
		"actually given you the corresponding information."

	switch step {
	case models.StepStart, models.StepConsent:
		return base + " Right now, ask for consent to collect their information before anything else."
	case models.StepPersonalData:
		return base + " Right now, collect their full name and at least one of email or phone."
	case models.StepBant:
		return base + " Right now, learn their budget, decision authority, need, and timeline."
	case models.StepRequirements:
		return base + " Right now, learn the application type, desired features, integrations, and any deadline."
	case models.StepMeeting:
		return base + " Right now, help them find and book a meeting slot."
	case models.StepCompleted:
		return base + " The qualification is complete; answer follow-up questions and offer to reschedule if asked."
	default:
		return base
	}
}
