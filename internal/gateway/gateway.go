package gateway

import (
	"log/slog"
	"time"

	"github.com/tdxcore/leadqualifier/internal/auth"
	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/orchestrator"
	"github.com/tdxcore/leadqualifier/internal/store"
)

// New builds the C8 hub and its legacy REST facade over one shared router,
// wiring the hub back in as the orchestrator.EventPublisher every resource
// mutation (from either surface) notifies.
func New(
	st *store.Store,
	cal orchestrator.CalendarClient,
	msg orchestrator.MessagingClient,
	dash *dashboard.Service,
	loc *time.Location,
	cfg config.GatewayConfig,
	verifier *auth.Verifier,
	logger *slog.Logger,
) (*Hub, *REST) {
	r := newRouter(st, cal, msg, dash, loc)
	hub := NewHub(cfg, verifier, r, logger)
	rest := NewREST(r)
	return hub, rest
}
