package qualification

import (
	"testing"
	"time"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

func TestNext_StartAdvancesToConsentOnFirstTurn(t *testing.T) {
	in := Input{Lead: &models.LeadQualification{CurrentStep: models.StepStart}}
	got := Next(in, Effects{})
	if got != models.StepConsent {
		t.Fatalf("expected consent, got %s", got)
	}
}

func TestNext_ConsentTrueAdvancesToPersonalData(t *testing.T) {
	in := Input{Lead: &models.LeadQualification{CurrentStep: models.StepConsent}}
	yes := true
	got := Next(in, Effects{ConsentGiven: &yes})
	if got != models.StepPersonalData {
		t.Fatalf("expected personal_data, got %s", got)
	}
}

func TestNext_ConsentFalseAloneStaysAtConsentForReprompt(t *testing.T) {
	in := Input{Lead: &models.LeadQualification{CurrentStep: models.StepConsent}}
	no := false
	got := Next(in, Effects{ConsentGiven: &no, ConsecutiveRefusals: 1})
	if got != models.StepConsent {
		t.Fatalf("expected a single refusal to stay at consent, got %s", got)
	}
}

func TestNext_TwoConsecutiveRefusalsAbandons(t *testing.T) {
	in := Input{Lead: &models.LeadQualification{CurrentStep: models.StepConsent}}
	no := false
	got := Next(in, Effects{ConsentGiven: &no, ConsecutiveRefusals: 2})
	if got != models.StepAbandoned {
		t.Fatalf("expected abandoned after two refusals, got %s", got)
	}
}

func TestNext_PersonalDataRequiresNameAndContact(t *testing.T) {
	in := Input{
		Lead: &models.LeadQualification{CurrentStep: models.StepPersonalData},
		User: &models.User{FullName: "Ada Lovelace"},
	}
	if got := Next(in, Effects{}); got != models.StepPersonalData {
		t.Fatalf("expected to stay at personal_data without email or phone, got %s", got)
	}

	in.User.Email = "ada@example.com"
	if got := Next(in, Effects{}); got != models.StepBant {
		t.Fatalf("expected bant once name and email are set, got %s", got)
	}
}

func TestNext_BantRequiresAllFourFields(t *testing.T) {
	in := Input{
		Lead: &models.LeadQualification{CurrentStep: models.StepBant},
		Bant: &models.BantData{Budget: "50k", Authority: "owner", Need: "website"},
	}
	if got := Next(in, Effects{}); got != models.StepBant {
		t.Fatalf("expected to stay at bant with timeline missing, got %s", got)
	}

	in.Bant.Timeline = "q3"
	if got := Next(in, Effects{}); got != models.StepRequirements {
		t.Fatalf("expected requirements once all four bant fields are set, got %s", got)
	}
}

func TestNext_RequirementsNeedsAppTypeAndFeature(t *testing.T) {
	in := Input{
		Lead:         &models.LeadQualification{CurrentStep: models.StepRequirements},
		Requirements: &models.Requirements{AppType: "mobile app"},
		HasFeature:   false,
	}
	if got := Next(in, Effects{}); got != models.StepRequirements {
		t.Fatalf("expected to stay at requirements without a feature, got %s", got)
	}

	in.HasFeature = true
	if got := Next(in, Effects{}); got != models.StepMeeting {
		t.Fatalf("expected meeting once app_type and a feature are set, got %s", got)
	}
}

func TestNext_MeetingCompletesWhenScheduled(t *testing.T) {
	in := Input{
		Lead:    &models.LeadQualification{CurrentStep: models.StepMeeting},
		Meeting: &models.Meeting{Status: models.MeetingScheduled},
	}
	if got := Next(in, Effects{}); got != models.StepCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestNext_EndConversationAbandonsFromAnyState(t *testing.T) {
	for _, step := range []models.QualificationStep{models.StepStart, models.StepBant, models.StepMeeting} {
		in := Input{Lead: &models.LeadQualification{CurrentStep: step}}
		if got := Next(in, Effects{EndConversationReason: "user_declined"}); got != models.StepAbandoned {
			t.Fatalf("step %s: expected abandoned, got %s", step, got)
		}
	}
}

func TestNext_SevenDaysSilenceAbandons(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := Input{
		Lead:              &models.LeadQualification{CurrentStep: models.StepBant},
		LastUserMessageAt: now.Add(-8 * 24 * time.Hour),
		Now:               now,
	}
	if got := Next(in, Effects{}); got != models.StepAbandoned {
		t.Fatalf("expected abandoned after 7+ days of silence, got %s", got)
	}
}

func TestNext_WithinSevenDaysDoesNotAbandon(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := Input{
		Lead:              &models.LeadQualification{CurrentStep: models.StepBant},
		LastUserMessageAt: now.Add(-6 * 24 * time.Hour),
		Now:               now,
		Bant:              &models.BantData{},
	}
	if got := Next(in, Effects{}); got != models.StepBant {
		t.Fatalf("expected to remain at bant within the silence window, got %s", got)
	}
}

func TestNext_OperatorOverrideWins(t *testing.T) {
	in := Input{Lead: &models.LeadQualification{CurrentStep: models.StepBant}}
	target := models.StepMeeting
	if got := Next(in, Effects{OperatorOverride: &target}); got != models.StepMeeting {
		t.Fatalf("expected operator override to win, got %s", got)
	}
}

func TestNext_TerminalStatesNeverRegress(t *testing.T) {
	for _, step := range []models.QualificationStep{models.StepCompleted, models.StepAbandoned} {
		in := Input{Lead: &models.LeadQualification{CurrentStep: step}}
		if got := Next(in, Effects{}); got != step {
			t.Fatalf("expected terminal state %s to stay put, got %s", step, got)
		}
	}
}

func TestNext_IdempotentOnRepeatedCall(t *testing.T) {
	in := Input{
		Lead: &models.LeadQualification{CurrentStep: models.StepConsent},
	}
	yes := true
	first := Next(in, Effects{ConsentGiven: &yes})
	in.Lead.CurrentStep = first
	second := Next(in, Effects{})
	if second != first {
		t.Fatalf("expected idempotent re-evaluation, got %s then %s", first, second)
	}
}
