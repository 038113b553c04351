package dashboard

import (
	"time"

	"github.com/tdxcore/leadqualifier/pkg/models"
)

// Stats answers get_dashboard_stats.
type Stats struct {
	TotalUsers          int                                    `json:"total_users"`
	ActiveConversations int                                    `json:"active_conversations"`
	MeetingsToday       int                                    `json:"meetings_today"`
	LeadsByStep         map[models.QualificationStep]int       `json:"leads_by_step"`
}

// FunnelStage is one step of get_conversion_funnel, in pipeline order.
type FunnelStage struct {
	Step           models.QualificationStep `json:"step"`
	Count          int                      `json:"count"`
	ConversionRate float64                  `json:"conversion_rate"` // relative to the first stage
}

// ConversionFunnel answers get_conversion_funnel.
type ConversionFunnel struct {
	Stages        []FunnelStage `json:"stages"`
	AbandonedLeads int          `json:"abandoned_leads"`
}

// ActivityPoint is one hourly bucket of get_activity_timeline.
type ActivityPoint struct {
	HourStart time.Time `json:"hour_start"`
	Messages  int       `json:"messages"`
	Meetings  int       `json:"meetings"`
}

// ActivityTimeline answers get_activity_timeline(window).
type ActivityTimeline struct {
	Points []ActivityPoint `json:"points"`
}

// AgentPerformance answers get_agent_performance.
type AgentPerformance struct {
	TurnCount           int     `json:"turn_count"`
	MeanLatencySeconds   float64 `json:"mean_latency_seconds"`
	MedianLatencySeconds float64 `json:"median_latency_seconds"`
	TurnErrorRate        float64 `json:"turn_error_rate"`
	ToolCallCount        int     `json:"tool_call_count"`
	ToolCallSuccessRate  float64 `json:"tool_call_success_rate"`
}

// RealTimeMetrics answers get_real_time_metrics.
type RealTimeMetrics struct {
	OpenSessions        int     `json:"open_sessions"`
	InFlightConversations int   `json:"in_flight_conversations"`
	RecentErrorRate     float64 `json:"recent_error_rate"`
}

// ConversionStats answers get_conversion_stats.
type ConversionStats struct {
	TotalLeads       int     `json:"total_leads"`
	Completed        int     `json:"completed"`
	Abandoned        int     `json:"abandoned"`
	CompletionRate   float64 `json:"completion_rate"`
	AbandonmentRate  float64 `json:"abandonment_rate"`
}
