// Package qualification implements the C5 Qualification State Machine: a
// pure function from a lead's current state plus the effects applied this
// turn to its next stage. It never persists anything; C6 is responsible
// for writing the result back through C1.
package qualification

import (
	"time"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

// Effects captures what happened during the current turn that the state
// machine needs to decide a transition. Every field is optional; a zero
// value means "nothing relevant to this happened this turn".
type Effects struct {
	// ConsentGiven is set when record_consent fired this turn.
	ConsentGiven *bool

	// ConsecutiveRefusals is the number of consecutive explicit refusals
	// to consent observed so far, including this turn's if any. C6 tracks
	// this count across turns since the machine itself is stateless.
	ConsecutiveRefusals int

	// EndConversationReason is set when end_conversation fired this turn.
	EndConversationReason string

	// OperatorOverride, when non-nil, forces the next stage regardless of
	// any other input, per spec.md §4.5's operator-override transition.
	OperatorOverride *models.QualificationStep
}

// Input bundles the persisted state the machine reads to decide a
// transition.
type Input struct {
	Lead         *models.LeadQualification
	User         *models.User
	Bant         *models.BantData
	Requirements *models.Requirements
	HasFeature   bool
	Meeting      *models.Meeting

	// LastUserMessageAt and Now drive the 7-day abandonment rule; a zero
	// LastUserMessageAt means no user message has ever been recorded.
	LastUserMessageAt time.Time
	Now               time.Time
	AbandonAfter      time.Duration
}

// Next computes the lead's next stage. It is a pure function: the same
// Input and Effects always produce the same result, and calling it twice
// for an already-applied transition is a no-op (idempotent) because the
// Input already reflects the post-effect state.
func Next(in Input, eff Effects) models.QualificationStep {
	if in.Lead == nil {
		return models.StepStart
	}
	current := in.Lead.CurrentStep

	if eff.OperatorOverride != nil {
		return *eff.OperatorOverride
	}

	if current == models.StepCompleted || current == models.StepAbandoned {
		return current
	}

	if eff.EndConversationReason != "" {
		return models.StepAbandoned
	}

	abandonAfter := in.AbandonAfter
	if abandonAfter <= 0 {
		abandonAfter = 7 * 24 * time.Hour
	}
	if !in.LastUserMessageAt.IsZero() && !in.Now.IsZero() && in.Now.Sub(in.LastUserMessageAt) >= abandonAfter {
		return models.StepAbandoned
	}

	switch current {
	case models.StepStart:
		// start -> consent fires on the first user turn; by the time
		// Next is invoked a turn has already happened, so this always
		// advances unless an earlier rule already returned.
		return advanceFromConsentInputs(in, eff, models.StepConsent)

	case models.StepConsent:
		return advanceFromConsentInputs(in, eff, models.StepConsent)

	case models.StepPersonalData:
		if in.User != nil && in.User.FullName != "" && (in.User.Email != "" || in.User.Phone != "") {
			return models.StepBant
		}
		return current

	case models.StepBant:
		if in.Bant.Complete() {
			return models.StepRequirements
		}
		return current

	case models.StepRequirements:
		if in.Requirements != nil && in.Requirements.AppType != "" && in.HasFeature {
			return models.StepMeeting
		}
		return current

	case models.StepMeeting:
		if in.Meeting != nil && in.Meeting.Status == models.MeetingScheduled {
			return models.StepCompleted
		}
		return current

	default:
		return current
	}
}

func advanceFromConsentInputs(in Input, eff Effects, stageIfUndecided models.QualificationStep) models.QualificationStep {
	if eff.ConsecutiveRefusals >= 2 {
		return models.StepAbandoned
	}
	if eff.ConsentGiven != nil {
		if !*eff.ConsentGiven {
			// A single refusal re-prompts rather than abandons; only a
			// second consecutive refusal (above) ends the conversation.
			return stageIfUndecided
		}
		return models.StepPersonalData
	}
	return stageIfUndecided
}
