// Package dashboard is the C9 Dashboard/Query Service: read-only
// aggregations over the store and the in-process metrics recorder. It
// never mutates state; every answer is best-effort consistent with
// concurrent writes elsewhere in the system.
package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// pipelineOrder is the step sequence a lead walks through, from start to
// completed (abandoned is left out), used to compute funnel conversion
// rates relative to the first stage.
var pipelineOrder = []models.QualificationStep{
	models.StepStart,
	models.StepConsent,
	models.StepPersonalData,
	models.StepBant,
	models.StepRequirements,
	models.StepMeeting,
	models.StepCompleted,
}

// Service implements every C9 action over a Store and a Metrics recorder.
type Service struct {
	store   *store.Store
	metrics *Metrics
	logger  *slog.Logger
	loc     *time.Location
}

func New(st *store.Store, metrics *Metrics, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Service{store: st, metrics: metrics, logger: logger.With("component", "dashboard"), loc: loc}
}

// Metrics exposes the recorder so the orchestrator and gateway can feed it
// turn/tool/session samples.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	totalUsers, err := s.store.Stats.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	activeConvs, err := s.store.Stats.CountActiveConversations(ctx)
	if err != nil {
		return nil, err
	}
	today, err := s.store.Meetings.ListToday(ctx, s.loc)
	if err != nil {
		return nil, err
	}
	leadsByStep, err := s.store.Stats.CountLeadsByStep(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalUsers:          totalUsers,
		ActiveConversations: activeConvs,
		MeetingsToday:       len(today),
		LeadsByStep:         leadsByStep,
	}, nil
}

func (s *Service) ConversionFunnel(ctx context.Context) (*ConversionFunnel, error) {
	leadsByStep, err := s.store.Stats.CountLeadsByStep(ctx)
	if err != nil {
		return nil, err
	}

	stages := make([]FunnelStage, 0, len(pipelineOrder))
	var base float64
	for i, step := range pipelineOrder {
		count := leadsByStep[step]
		if i == 0 {
			base = float64(count)
		}
		rate := 0.0
		if base > 0 {
			rate = float64(count) / base
		}
		stages = append(stages, FunnelStage{Step: step, Count: count, ConversionRate: rate})
	}

	return &ConversionFunnel{Stages: stages, AbandonedLeads: leadsByStep[models.StepAbandoned]}, nil
}

func (s *Service) LeadPipeline(ctx context.Context) (map[models.QualificationStep]int, error) {
	return s.store.Stats.CountLeadsByStep(ctx)
}

func (s *Service) ConversionStats(ctx context.Context) (*ConversionStats, error) {
	leadsByStep, err := s.store.Stats.CountLeadsByStep(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range leadsByStep {
		total += n
	}
	completed := leadsByStep[models.StepCompleted]
	abandoned := leadsByStep[models.StepAbandoned]

	out := &ConversionStats{TotalLeads: total, Completed: completed, Abandoned: abandoned}
	if total > 0 {
		out.CompletionRate = float64(completed) / float64(total)
		out.AbandonmentRate = float64(abandoned) / float64(total)
	}
	return out, nil
}

func (s *Service) AbandonedLeads(ctx context.Context) ([]*models.LeadQualification, error) {
	return s.store.Leads.ListByStep(ctx, models.StepAbandoned)
}

// ActivityTimeline buckets message and meeting creation counts into
// hourly windows covering [now-window, now), oldest first. It derives
// each bucket by differencing two cumulative CountMessagesSince/
// CountMeetingsSince calls rather than requiring a dedicated per-hour
// store query.
func (s *Service) ActivityTimeline(ctx context.Context, window time.Duration) (*ActivityTimeline, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := time.Now().UTC()
	start := now.Add(-window).Truncate(time.Hour)

	var boundaries []time.Time
	for t := start; t.Before(now); t = t.Add(time.Hour) {
		boundaries = append(boundaries, t)
	}
	boundaries = append(boundaries, now)

	points := make([]ActivityPoint, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		lo, hi := boundaries[i], boundaries[i+1]

		msgLo, err := s.store.Stats.CountMessagesSince(ctx, lo)
		if err != nil {
			return nil, err
		}
		msgHi, err := s.store.Stats.CountMessagesSince(ctx, hi)
		if err != nil {
			return nil, err
		}
		meetLo, err := s.store.Stats.CountMeetingsSince(ctx, lo)
		if err != nil {
			return nil, err
		}
		meetHi, err := s.store.Stats.CountMeetingsSince(ctx, hi)
		if err != nil {
			return nil, err
		}

		points = append(points, ActivityPoint{
			HourStart: lo,
			Messages:  msgLo - msgHi,
			Meetings:  meetLo - meetHi,
		})
	}

	return &ActivityTimeline{Points: points}, nil
}

// AgentPerformance reports on turns and tool calls recorded in the
// window immediately preceding now.
func (s *Service) AgentPerformance(window time.Duration) *AgentPerformance {
	if window <= 0 {
		window = time.Hour
	}
	cutoff := time.Now().UTC().Add(-window)

	turns := s.metrics.turnsSince(cutoff)
	out := &AgentPerformance{TurnCount: len(turns)}
	if len(turns) > 0 {
		latencies := make([]float64, len(turns))
		var sum float64
		errored := 0
		for i, t := range turns {
			sec := t.latency.Seconds()
			latencies[i] = sec
			sum += sec
			if t.errored {
				errored++
			}
		}
		sort.Float64s(latencies)
		out.MeanLatencySeconds = sum / float64(len(turns))
		out.MedianLatencySeconds = median(latencies)
		out.TurnErrorRate = float64(errored) / float64(len(turns))
	}

	calls := s.metrics.toolCallsSince(cutoff)
	out.ToolCallCount = len(calls)
	if len(calls) > 0 {
		success := 0
		for _, c := range calls {
			if c.success {
				success++
			}
		}
		out.ToolCallSuccessRate = float64(success) / float64(len(calls))
	}

	return out
}

// RealTimeMetrics reports current gauges plus a short trailing error rate.
func (s *Service) RealTimeMetrics() *RealTimeMetrics {
	perf := s.AgentPerformance(5 * time.Minute)
	return &RealTimeMetrics{
		OpenSessions:          s.metrics.ActiveSessionsValue(),
		InFlightConversations: s.metrics.InFlightConversationsValue(),
		RecentErrorRate:       perf.TurnErrorRate,
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
