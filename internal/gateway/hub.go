package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tdxcore/leadqualifier/internal/auth"
	"github.com/tdxcore/leadqualifier/internal/config"
)

// gatewayConfig wraps config.GatewayConfig with the defaults spec.md §4.8
// names, applied lazily so a zero-value config.GatewayConfig still works.
type gatewayConfig config.GatewayConfig

func (c gatewayConfig) bufferSize() int {
	if c.SendBufferSize > 0 {
		return c.SendBufferSize
	}
	return 256
}

func (c gatewayConfig) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 30 * time.Second
}

func (c gatewayConfig) heartbeatTimeout() time.Duration {
	if c.HeartbeatTimeout > 0 {
		return c.HeartbeatTimeout
	}
	return 120 * time.Second
}

// Hub is the C8 WebSocket fan-out: every authenticated or anonymous
// connection registers here, and every store mutation elsewhere in the
// system reaches every connected session through Publish, which
// implements orchestrator.EventPublisher.
type Hub struct {
	cfg      gatewayConfig
	verifier *auth.Verifier
	router   *router
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewHub builds the C8 hub and wires it back into the router as the event
// publisher every resource mutation notifies. verifier may be nil or
// disabled, in which case every connection is accepted as anonymous.
func NewHub(cfg config.GatewayConfig, verifier *auth.Verifier, r *router, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	hub := &Hub{
		cfg:      gatewayConfig(cfg),
		verifier: verifier,
		router:   r,
		logger:   logger.With("component", "gateway"),
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	r.setPublisher(hub)
	return hub
}

// ServeHTTP upgrades the connection and authenticates it via the ?token=
// query parameter. An absent or disabled verifier admits the connection
// anonymously; a present-but-invalid token is rejected before the upgrade
// completes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID string
	if h.verifier.Enabled() {
		token := r.URL.Query().Get("token")
		sub, err := h.verifier.Verify(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID = sub
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := newSession(h, conn, userID)
	sess.run()
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("gateway session opened", "session_id", s.id, "user_id", s.userID, "open_sessions", n)
	if h.router != nil && h.router.metrics != nil {
		h.router.metrics.SetActiveSessions(n)
	}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	n := len(h.sessions)
	h.mu.Unlock()
	if h.router != nil && h.router.metrics != nil {
		h.router.metrics.SetActiveSessions(n)
	}
}

// Publish implements orchestrator.EventPublisher: every connected session
// is an operator-facing dashboard view, so every event is broadcast to
// every session rather than scoped to a per-conversation subscription.
func (h *Hub) Publish(conversationID, eventType string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.sendEvent(eventType, map[string]any{
			"conversation_id": conversationID,
			"payload":         data,
		})
	}
}

// SessionCount reports the number of currently open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
