package agent

import "github.com/tdxcore/leadqualifier/pkg/models"

// Tool names in the catalogue spec.md §4.4 names explicitly. C6 maps each
// one to a specific C1/C2 call sequence; the runtime itself never applies
// an effect.
const (
	ToolRecordConsent      = "record_consent"
	ToolRecordPersonalData = "record_personal_data"
	ToolRecordBant         = "record_bant"
	ToolRecordRequirements = "record_requirements"
	ToolGetAvailableSlots  = "get_available_slots"
	ToolScheduleMeeting    = "schedule_meeting"
	ToolCancelMeeting      = "cancel_meeting"
	ToolEndConversation    = "end_conversation"
)

var catalogue = map[string]ToolSpec{
	ToolRecordConsent: {
		Name:        ToolRecordConsent,
		Description: "Record whether the user consented to proceed with lead qualification.",
		Schema:      []byte(`{"type":"object","properties":{"consent":{"type":"boolean"}},"required":["consent"]}`),
	},
	ToolRecordPersonalData: {
		Name:        ToolRecordPersonalData,
		Description: "Record the user's full name, email, phone, and company once they share them.",
		Schema: []byte(`{"type":"object","properties":{
			"full_name":{"type":"string"},
			"email":{"type":"string"},
			"phone":{"type":"string"},
			"company":{"type":"string"}
		},"required":["full_name"]}`),
	},
	ToolRecordBant: {
		Name:        ToolRecordBant,
		Description: "Record any of budget, authority, need, or timeline the user has disclosed so far.",
		Schema: []byte(`{"type":"object","properties":{
			"budget":{"type":"string"},
			"authority":{"type":"string"},
			"need":{"type":"string"},
			"timeline":{"type":"string"}
		}}`),
	},
	ToolRecordRequirements: {
		Name:        ToolRecordRequirements,
		Description: "Record the application type, optional deadline, and the features and integrations the user wants.",
		Schema: []byte(`{"type":"object","properties":{
			"app_type":{"type":"string"},
			"deadline":{"type":"string","format":"date-time"},
			"features":{"type":"array","items":{"type":"string"}},
			"integrations":{"type":"array","items":{"type":"string"}}
		}}`),
	},
	ToolGetAvailableSlots: {
		Name:        ToolGetAvailableSlots,
		Description: "List bookable meeting slots on a given date for a given duration in minutes.",
		Schema:      []byte(`{"type":"object","properties":{"date":{"type":"string","format":"date"},"duration_minutes":{"type":"integer"}},"required":["date","duration_minutes"]}`),
	},
	ToolScheduleMeeting: {
		Name:        ToolScheduleMeeting,
		Description: "Book a meeting at a specific start and end time with the given subject and attendee email.",
		Schema: []byte(`{"type":"object","properties":{
			"start":{"type":"string","format":"date-time"},
			"end":{"type":"string","format":"date-time"},
			"subject":{"type":"string"},
			"attendee_email":{"type":"string"}
		},"required":["start","end","subject","attendee_email"]}`),
	},
	ToolCancelMeeting: {
		Name:        ToolCancelMeeting,
		Description: "Cancel a previously scheduled meeting by id.",
		Schema:      []byte(`{"type":"object","properties":{"meeting_id":{"type":"string"}},"required":["meeting_id"]}`),
	},
	ToolEndConversation: {
		Name:        ToolEndConversation,
		Description: "End the conversation, recording a reason such as user_declined.",
		Schema:      []byte(`{"type":"object","properties":{"reason":{"type":"string"}},"required":["reason"]}`),
	},
}

// toolsByStage gates which tools are valid for the current qualification
// step, per spec.md §4.6 step 4: "tools invalid for the current stage are
// omitted". end_conversation is offered at every step; cancel_meeting only
// at meeting and completed.
var toolsByStage = map[models.QualificationStep][]string{
	models.StepStart:        {ToolRecordConsent, ToolEndConversation},
	models.StepConsent:      {ToolRecordConsent, ToolEndConversation},
	models.StepPersonalData: {ToolRecordPersonalData, ToolEndConversation},
	models.StepBant:         {ToolRecordBant, ToolEndConversation},
	models.StepRequirements: {ToolRecordRequirements, ToolEndConversation},
	models.StepMeeting:      {ToolGetAvailableSlots, ToolScheduleMeeting, ToolCancelMeeting, ToolEndConversation},
	models.StepCompleted:    {ToolCancelMeeting, ToolEndConversation},
}

// ToolsForStage returns the ToolSpecs available to the agent at the given
// qualification step.
func ToolsForStage(step models.QualificationStep) []ToolSpec {
	names, ok := toolsByStage[step]
	if !ok {
		return []ToolSpec{catalogue[ToolEndConversation]}
	}
	out := make([]ToolSpec, 0, len(names))
	for _, n := range names {
		out = append(out, catalogue[n])
	}
	return out
}
