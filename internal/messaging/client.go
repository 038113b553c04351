// Package messaging is the C3 Messaging Client: inbound signature
// verification and outbound send against the WhatsApp Cloud API, with the
// rate-limit and retry discipline spec.md §4.3 requires.
package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/internal/retry"
)

// defaultSendRate matches the WhatsApp Cloud API's default per-number
// throughput tier (80 messages/second) absent a configured override.
const defaultSendRate = 80

const graphMessagesBase = "https://graph.facebook.com/v20.0"

// DeliveryFailure is the typed error C6 treats as a terminal send outcome:
// the Message is kept, tombstoned with a delivery-error flag, rather than
// retried further.
type DeliveryFailure struct {
	To     string
	Cause  error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("messaging: delivery to %s failed: %v", e.To, e.Cause)
}

func (e *DeliveryFailure) Unwrap() error { return e.Cause }

// Client sends and verifies messages against the WhatsApp Cloud API.
type Client struct {
	httpClient    *http.Client
	accessToken   string
	appSecret     string
	phoneNumberID string
	baseURL       string
	retry         retry.Config
	limiter       *rate.Limiter
}

// New builds a Client from MessagingConfig.
func New(cfg config.MessagingConfig) *Client {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendRate := cfg.SendRatePerSecond
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		accessToken:   cfg.AccessToken,
		appSecret:     cfg.AppSecret,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       graphMessagesBase,
		retry:         retry.MessagingConfig(),
		limiter:       rate.NewLimiter(rate.Limit(sendRate), 1),
	}
}

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw request body using the configured app secret.
// Webhook deliveries that fail this check must be rejected before any
// parsing is attempted.
func (c *Client) VerifySignature(body []byte, header string) bool {
	if c.appSecret == "" {
		return false
	}
	const prefix = "sha256="
	sig := strings.TrimPrefix(header, prefix)
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}

// SendText sends a plain text message and returns the provider's message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.send(ctx, to, payload)
}

// MediaKind is the media type accepted by SendMedia.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// SendMedia sends a media message, with an optional caption, and returns
// the provider's message id.
func (c *Client) SendMedia(ctx context.Context, to string, kind MediaKind, url, caption string) (string, error) {
	media := map[string]any{"link": url}
	if caption != "" {
		media["caption"] = caption
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              string(kind),
		string(kind):        media,
	}
	return c.send(ctx, to, payload)
}

func (c *Client) send(ctx context.Context, to string, payload map[string]any) (string, error) {
	result, retryResult := retry.DoWithValue(ctx, c.retry, func() (string, error) {
		return c.doSend(ctx, payload)
	})
	if retryResult.Err != nil {
		return "", &DeliveryFailure{To: to, Cause: retryResult.Err}
	}
	return result, nil
}

func (c *Client) doSend(ctx context.Context, payload map[string]any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", ctx.Err()
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", retry.Permanent(errs.Validation("messaging: encode payload"))
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", retry.Permanent(errs.Internal("messaging: build request", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Transient("messaging: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if wait := retryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
		return "", errs.Transient("messaging: rate limited", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return "", errs.Transient("messaging: server error", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", retry.Permanent(errs.Permanent("messaging: send rejected", fmt.Errorf("status %d: %s", resp.StatusCode, string(data))))
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", retry.Permanent(errs.Internal("messaging: decode response", err))
	}
	if len(decoded.Messages) == 0 {
		return "", retry.Permanent(errs.Internal("messaging: empty response", nil))
	}
	return decoded.Messages[0].ID, nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}
