// Package calendar is the C2 Calendar Client: availability queries and
// event create/update/cancel against an external calendar provider, with
// the retry and error-classification discipline spec.md §4.2 requires.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/internal/retry"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to a Microsoft Graph calendar on behalf of the configured
// mailbox, authenticating via the OAuth2 client-credentials grant.
type Client struct {
	httpClient *http.Client
	userEmail  string
	location   *time.Location
	workday    WorkdayWindow
	baseURL    string
	retry      retry.Config
}

// WorkdayWindow is the local working window slot derivation honors.
type WorkdayWindow struct {
	Start time.Duration // offset from local midnight, e.g. 9h for 09:00
	End   time.Duration
}

// New builds a Client from CalendarConfig, wiring the client-credentials
// token source so every request is transparently authenticated.
func New(cfg config.CalendarConfig) (*Client, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	workday, err := parseWorkday(cfg.WorkdayStart, cfg.WorkdayEnd)
	if err != nil {
		return nil, err
	}

	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := ccCfg.Client(context.Background())
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		userEmail:  cfg.UserEmail,
		location:   loc,
		workday:    workday,
		baseURL:    graphBaseURL,
		retry:      retry.CalendarConfig(),
	}, nil
}

func parseWorkday(start, end string) (WorkdayWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return WorkdayWindow{}, fmt.Errorf("calendar: workday_start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return WorkdayWindow{}, fmt.Errorf("calendar: workday_end: %w", err)
	}
	return WorkdayWindow{Start: s, End: e}, nil
}

func parseClock(hhmm string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// GetSchedule returns the busy intervals within [window.Start,
// window.End) for the configured mailbox.
func (c *Client) GetSchedule(ctx context.Context, window BusyWindow) ([]models.BusyInterval, error) {
	body := map[string]any{
		"schedules":                  []string{c.userEmail},
		"startTime":                  graphDateTime(window.Start, c.location),
		"endTime":                    graphDateTime(window.End, c.location),
		"availabilityViewInterval":   30,
	}
	var resp getScheduleResponse
	if err := c.doRetry(ctx, http.MethodPost, "/me/calendar/getSchedule", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	out := make([]models.BusyInterval, 0, len(resp.Value[0].ScheduleItems))
	for _, item := range resp.Value[0].ScheduleItems {
		start, err := parseGraphTime(item.Start)
		if err != nil {
			continue
		}
		end, err := parseGraphTime(item.End)
		if err != nil {
			continue
		}
		out = append(out, models.BusyInterval{Start: start, End: end})
	}
	return out, nil
}

// BusyWindow is the query range for GetSchedule.
type BusyWindow struct {
	Start time.Time
	End   time.Time
}

// CreateEventInput is the payload for CreateEvent.
type CreateEventInput struct {
	Subject    string
	Start      time.Time
	End        time.Time
	Attendees  []string
	Online     bool
}

// CreateEvent books a new calendar event, optionally with an online
// meeting link, and returns the provider's event id.
func (c *Client) CreateEvent(ctx context.Context, in CreateEventInput) (externalID, joinURL string, err error) {
	body := map[string]any{
		"subject": in.Subject,
		"start":   graphTimeZone(in.Start, c.location),
		"end":     graphTimeZone(in.End, c.location),
		"attendees": attendeeList(in.Attendees),
	}
	if in.Online {
		body["isOnlineMeeting"] = true
		body["onlineMeetingProvider"] = "teamsForBusiness"
	}
	var resp eventResponse
	if err := c.doRetry(ctx, http.MethodPost, "/me/events", body, &resp); err != nil {
		return "", "", err
	}
	join := ""
	if resp.OnlineMeeting != nil {
		join = resp.OnlineMeeting.JoinURL
	}
	return resp.ID, join, nil
}

// UpdateEventPatch carries the fields an update_event call may change.
type UpdateEventPatch struct {
	Subject *string
	Start   *time.Time
	End     *time.Time
}

// UpdateEvent patches an existing event in place.
func (c *Client) UpdateEvent(ctx context.Context, externalID string, patch UpdateEventPatch) error {
	body := map[string]any{}
	if patch.Subject != nil {
		body["subject"] = *patch.Subject
	}
	if patch.Start != nil {
		body["start"] = graphTimeZone(*patch.Start, c.location)
	}
	if patch.End != nil {
		body["end"] = graphTimeZone(*patch.End, c.location)
	}
	return c.doRetry(ctx, http.MethodPatch, "/me/events/"+externalID, body, nil)
}

// CancelEvent cancels an existing event.
func (c *Client) CancelEvent(ctx context.Context, externalID string) error {
	return c.doRetry(ctx, http.MethodPost, "/me/events/"+externalID+"/cancel", map[string]any{}, nil)
}

// SyncedEvent is one row of the provider's delta feed.
type SyncedEvent struct {
	ExternalID string
	Subject    string
	Start      time.Time
	End        time.Time
	Cancelled  bool
}

// Sync returns events changed since the given time, for reconciling local
// state with the remote calendar.
func (c *Client) Sync(ctx context.Context, since time.Time) ([]SyncedEvent, error) {
	path := fmt.Sprintf("/me/calendarView/delta?startDateTime=%s&endDateTime=%s",
		since.UTC().Format(time.RFC3339), since.Add(90*24*time.Hour).UTC().Format(time.RFC3339))
	var resp deltaResponse
	if err := c.doRetry(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]SyncedEvent, 0, len(resp.Value))
	for _, v := range resp.Value {
		start, _ := parseGraphTime(v.Start)
		end, _ := parseGraphTime(v.End)
		out = append(out, SyncedEvent{
			ExternalID: v.ID,
			Subject:    v.Subject,
			Start:      start,
			End:        end,
			Cancelled:  v.IsCancelled,
		})
	}
	return out, nil
}

// doRetry performs an HTTP round trip against the Graph API with the
// spec's retry discipline: 4xx other than 429 surface immediately as
// permanent, everything else (network errors, 5xx, 429) retries.
func (c *Client) doRetry(ctx context.Context, method, path string, body any, out any) error {
	result := retry.Do(ctx, c.retry, func() error {
		return c.do(ctx, method, path, body, out)
	})
	return result.Err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(errs.Validation("calendar: encode request body"))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(errs.Internal("calendar: build request", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Transient("calendar: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.Transient("calendar: rate limited", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return errs.Transient("calendar: server error", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return retry.Permanent(errs.Permanent("calendar: request rejected", fmt.Errorf("status %d: %s", resp.StatusCode, string(data))))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(errs.Internal("calendar: decode response", err))
	}
	return nil
}

func attendeeList(emails []string) []map[string]any {
	out := make([]map[string]any, 0, len(emails))
	for _, e := range emails {
		out = append(out, map[string]any{
			"emailAddress": map[string]string{"address": e},
			"type":         "required",
		})
	}
	return out
}

func graphDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02T15:04:05.0000000")
}

func graphTimeZone(t time.Time, loc *time.Location) map[string]string {
	return map[string]string{
		"dateTime": t.In(loc).Format("2006-01-02T15:04:05.0000000"),
		"timeZone": loc.String(),
	}
}

func parseGraphTime(t graphDateTimeZone) (time.Time, error) {
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05.0000000", t.DateTime, loc)
	if err != nil {
		parsed, err = time.ParseInLocation(time.RFC3339, t.DateTime, loc)
		if err != nil {
			return time.Time{}, err
		}
	}
	return parsed.UTC(), nil
}

type graphDateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type getScheduleResponse struct {
	Value []struct {
		ScheduleItems []struct {
			Start graphDateTimeZone `json:"start"`
			End   graphDateTimeZone `json:"end"`
		} `json:"scheduleItems"`
	} `json:"value"`
}

type eventResponse struct {
	ID            string `json:"id"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

type deltaResponse struct {
	Value []struct {
		ID          string            `json:"id"`
		Subject     string            `json:"subject"`
		Start       graphDateTimeZone `json:"start"`
		End         graphDateTimeZone `json:"end"`
		IsCancelled bool              `json:"isCancelled"`
	} `json:"value"`
}
