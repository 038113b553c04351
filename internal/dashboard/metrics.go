package dashboard

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const recentSampleCap = 2000

// Metrics is the process-local counterpart to get_real_time_metrics and
// get_agent_performance: it exposes a standard Prometheus scrape surface
// (for external monitoring) while also keeping a small in-memory window of
// recent turn and tool-call samples, plus plain counters for the two
// point-in-time gauges, so the dashboard API can answer queries directly
// without scraping its own /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	activeSessionsGauge        prometheus.Gauge
	inFlightConversationsGauge prometheus.Gauge
	ErrorCounter               *prometheus.CounterVec
	ToolCallCounter            *prometheus.CounterVec
	ToolCallDuration           *prometheus.HistogramVec
	TurnDuration               prometheus.Histogram

	activeSessions        atomic.Int64
	inFlightConversations atomic.Int64

	mu        sync.Mutex
	turns     []turnSample
	toolCalls []toolSample
}

type turnSample struct {
	at      time.Time
	latency time.Duration
	errored bool
}

type toolSample struct {
	at      time.Time
	success bool
}

// NewMetrics builds a Metrics recorder on its own Prometheus registry
// (never the global default registry, so multiple instances — e.g. one
// per test — never collide on metric names). Call Registry to obtain the
// handler for a /metrics endpoint.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		activeSessionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "leadqualifier_active_sessions",
			Help: "Current number of open WebSocket dashboard sessions.",
		}),
		inFlightConversationsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "leadqualifier_in_flight_conversations",
			Help: "Current number of conversations with a turn in progress.",
		}),
		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadqualifier_errors_total",
			Help: "Total errors by originating component.",
		}, []string{"component"}),
		ToolCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadqualifier_tool_calls_total",
			Help: "Total agent tool invocations by tool name and outcome.",
		}, []string{"tool_name", "status"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadqualifier_tool_call_duration_seconds",
			Help:    "Duration of agent tool invocations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"tool_name"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadqualifier_turn_duration_seconds",
			Help:    "Duration of a full orchestrator turn, start to assistant reply dispatch.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}

// Registry returns the Prometheus registry this recorder's metrics are
// registered on, for wiring into an HTTP /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordTurn records one orchestrator turn's latency and whether it ended
// in an error, trimming the in-memory window to recentSampleCap entries.
func (m *Metrics) RecordTurn(d time.Duration, errored bool) {
	m.TurnDuration.Observe(d.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turnSample{at: time.Now().UTC(), latency: d, errored: errored})
	if len(m.turns) > recentSampleCap {
		m.turns = m.turns[len(m.turns)-recentSampleCap:]
	}
}

// RecordToolCall records one tool invocation's outcome.
func (m *Metrics) RecordToolCall(toolName string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolCallCounter.WithLabelValues(toolName, status).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(d.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = append(m.toolCalls, toolSample{at: time.Now().UTC(), success: success})
	if len(m.toolCalls) > recentSampleCap {
		m.toolCalls = m.toolCalls[len(m.toolCalls)-recentSampleCap:]
	}
}

// RecordError increments the error counter for the given component.
func (m *Metrics) RecordError(component string) {
	m.ErrorCounter.WithLabelValues(component).Inc()
}

// SetActiveSessions records the current C8 open-connection count.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Store(int64(n))
	m.activeSessionsGauge.Set(float64(n))
}

// ActiveSessionsValue returns the most recently recorded open-session count.
func (m *Metrics) ActiveSessionsValue() int { return int(m.activeSessions.Load()) }

// IncInFlightConversations marks one more conversation as mid-turn.
func (m *Metrics) IncInFlightConversations() {
	m.inFlightConversations.Add(1)
	m.inFlightConversationsGauge.Inc()
}

// DecInFlightConversations marks a conversation's turn as finished.
func (m *Metrics) DecInFlightConversations() {
	m.inFlightConversations.Add(-1)
	m.inFlightConversationsGauge.Dec()
}

// InFlightConversationsValue returns the current in-flight conversation count.
func (m *Metrics) InFlightConversationsValue() int { return int(m.inFlightConversations.Load()) }

// turnsSince returns a copy of the turn samples at or after cutoff.
func (m *Metrics) turnsSince(cutoff time.Time) []turnSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []turnSample
	for _, s := range m.turns {
		if !s.at.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// toolCallsSince returns a copy of the tool-call samples at or after cutoff.
func (m *Metrics) toolCallsSince(cutoff time.Time) []toolSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []toolSample
	for _, s := range m.toolCalls {
		if !s.at.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
