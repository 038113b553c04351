package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tdxcore/leadqualifier/internal/orchestrator"
	"github.com/tdxcore/leadqualifier/internal/store"
)

const testSecret = "test-app-secret"

type fakeVerifier struct{ secret string }

func (f fakeVerifier) VerifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(f.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header[len(prefix):]), []byte(expected))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []orchestrator.InboundMessage
}

func (f *fakeDispatcher) HandleInbound(ctx context.Context, in orchestrator.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	return nil
}

func TestHandleHandshake_EchoesChallengeOnTokenMatch(t *testing.T) {
	h := New(fakeVerifier{testSecret}, store.NewMemory(), &fakeDispatcher{}, "verify-me", nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echoed back, got %q", rec.Body.String())
	}
}

func TestHandleHandshake_RejectsWrongToken(t *testing.T) {
	h := New(fakeVerifier{testSecret}, store.NewMemory(), &fakeDispatcher{}, "verify-me", nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleDelivery_RejectsBadSignature(t *testing.T) {
	h := New(fakeVerifier{testSecret}, store.NewMemory(), &fakeDispatcher{}, "verify-me", nil)

	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a bad signature, got %d", rec.Code)
	}
}

func TestHandleDelivery_DispatchesTextMessage(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	st := store.NewMemory()
	h := New(fakeVerifier{testSecret}, st, dispatcher, "verify-me", nil)

	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{
			map[string]any{
				"changes": []any{
					map[string]any{
						"value": map[string]any{
							"contacts": []any{
								map[string]any{"profile": map[string]any{"name": "Ada Lovelace"}, "wa_id": "+15551234567"},
							},
							"messages": []any{
								map[string]any{
									"from": "+15551234567",
									"id":   "wamid.XYZ",
									"type": "text",
									"text": map[string]any{"body": "Hi there"},
								},
							},
						},
					},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(testSecret, body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.calls) != 1 {
		t.Fatalf("expected exactly one dispatched fragment, got %d", len(dispatcher.calls))
	}
	if dispatcher.calls[0].Content != "Hi there" {
		t.Fatalf("expected content %q, got %q", "Hi there", dispatcher.calls[0].Content)
	}
	if dispatcher.calls[0].ExternalID != "wamid.XYZ" {
		t.Fatalf("expected external id wamid.XYZ, got %q", dispatcher.calls[0].ExternalID)
	}
}

func TestHandleDelivery_MalformedPayloadStillReturns200(t *testing.T) {
	h := New(fakeVerifier{testSecret}, store.NewMemory(), &fakeDispatcher{}, "verify-me", nil)

	body := []byte(`{not valid json`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(testSecret, body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even for malformed payload, got %d", rec.Code)
	}
}
