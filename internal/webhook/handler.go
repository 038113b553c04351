// Package webhook is the C7 Webhook Ingest: the HTTP entry point for
// inbound provider callbacks. It verifies the request, resolves the
// sending party to a User/Conversation/LeadQualification, and hands each
// message fragment to the orchestrator keyed by conversation id.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tdxcore/leadqualifier/internal/orchestrator"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// MaxBodyBytes caps the size of an inbound webhook payload.
const MaxBodyBytes = 1 << 20

// SignatureVerifier is the subset of the C3 Messaging Client the handler
// depends on for HMAC verification.
type SignatureVerifier interface {
	VerifySignature(body []byte, header string) bool
}

// Dispatcher is the subset of the C6 Conversation Orchestrator the handler
// depends on.
type Dispatcher interface {
	HandleInbound(ctx context.Context, in orchestrator.InboundMessage) error
}

// Handler serves the WhatsApp Cloud API webhook surface: a GET subscription
// handshake and a POST delivery endpoint.
type Handler struct {
	verifier    SignatureVerifier
	store       *store.Store
	dispatcher  Dispatcher
	verifyToken string
	logger      *slog.Logger
}

func New(verifier SignatureVerifier, st *store.Store, dispatcher Dispatcher, verifyToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verifier:    verifier,
		store:       st,
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		logger:      logger.With("component", "webhook"),
	}
}

// inboundFragment is what the handler extracts from one provider payload
// entry before resolving it to a conversation and handing it off.
type inboundFragment struct {
	Platform    models.Platform
	ExternalID  string // sender's platform identifier (e.g. phone number)
	MessageID   string // provider message id, used for idempotency
	Content     string
	MessageType models.MessageType
	MediaURL    string
	SenderName  string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleHandshake(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleHandshake implements the provider subscription verification
// challenge: echo hub.challenge back when hub.verify_token matches.
func (h *Handler) handleHandshake(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// handleDelivery verifies the signature, parses the payload, and hands
// every extracted fragment to the orchestrator. It always replies 200
// once inbound Messages are durably persisted, or on a parse failure it
// cannot recover from — a non-2xx here just causes the provider to retry
// a payload we already know we can't process.
func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verifier.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, frag := range parseWAPayload(&payload) {
		if err := h.dispatch(r.Context(), frag); err != nil {
			h.logger.Error("failed to process webhook fragment", "error", err, "external_id", frag.ExternalID)
			// Still 200: durability of the inbound Message, not downstream
			// turn success, is what the provider retry loop cares about.
		}
	}

	w.WriteHeader(http.StatusOK)
}

// dispatch resolves/creates the User, Conversation, and LeadQualification
// for the fragment's sender, then hands off to the orchestrator keyed by
// conversation id, per spec.md §4.7 steps 1-4.
func (h *Handler) dispatch(ctx context.Context, frag inboundFragment) error {
	_, conv, _, err := h.store.Tx.UpsertUserAndOpenConversation(ctx, store.PartyInfo{
		Platform:   frag.Platform,
		ExternalID: frag.ExternalID,
		Phone:      frag.ExternalID,
		FullName:   frag.SenderName,
	})
	if err != nil {
		return err
	}

	return h.dispatcher.HandleInbound(ctx, orchestrator.InboundMessage{
		ConversationID: conv.ID,
		ExternalID:     frag.MessageID,
		Content:        frag.Content,
		MessageType:    frag.MessageType,
		MediaURL:       frag.MediaURL,
	})
}
