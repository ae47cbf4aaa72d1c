// Package backendapi is the HTTP client for the scouting backend service.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"offline_sync_agent/internal/domain/notification"
	"offline_sync_agent/internal/domain/scouting"

	"github.com/sirupsen/logrus"
)

// ErrUnsuccessful is returned when the backend answers 2xx with success=false.
var ErrUnsuccessful = errors.New("backend reported failure")

// APIError is returned when the backend replies with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

const (
	defaultMaxAttempts = 3
	maxErrorBody       = 512
)

// Client talks to the backend REST API with a bearer session token.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *logrus.Entry
	maxAttempts int
	backoff     time.Duration

	mu    sync.RWMutex
	token string
}

var (
	_ notification.Source    = (*Client)(nil)
	_ scouting.DatasetSource = (*Client)(nil)
)

func NewClient(baseURL, sessionToken string, timeout time.Duration, logger *logrus.Entry) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.WithField("component", "backendapi"),
		maxAttempts: defaultMaxAttempts,
		backoff:     time.Second,
		token:       sessionToken,
	}
}

// SetSessionToken replaces the token, e.g. after a login. Empty means logged out.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasSession reports whether a session token is configured.
func (c *Client) HasSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) sessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do sends one request and returns the decoded envelope. GET requests are retried on
// transport errors, 5xx and 429 with exponential back-off.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*response, error) {
	urlStr := c.baseURL + path
	if len(query) > 0 {
		urlStr += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxAttempts
	}
	logCtx := c.logger.WithFields(logrus.Fields{"method": method, "path": path})

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := c.backoff * time.Duration(1<<(attempt-2))
			logCtx.WithError(lastErr).WithField("attempt", attempt).Debugf("Retrying in %v", wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, retry, err := c.roundTrip(ctx, method, urlStr, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, urlStr string, payload []byte) (*response, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.sessionToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Message: msg}
		retry := httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests
		return nil, retry, apiErr
	}

	resp, err := parseResponse(data)
	if err != nil {
		return nil, false, err
	}
	if !resp.ok() {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
	}
	return resp, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) GetPastNotifications(ctx context.Context, limit int) ([]notification.Past, error) {
	resp, err := c.do(ctx, http.MethodGet, "/notifications/past", limitQuery(limit), nil)
	if err != nil {
		return nil, fmt.Errorf("get past notifications: %w", err)
	}
	return decodeItems[notification.Past](resp, "notifications", "pastNotifications")
}

func (c *Client) GetScheduledNotifications(ctx context.Context, limit int) ([]notification.Scheduled, error) {
	resp, err := c.do(ctx, http.MethodGet, "/notifications/scheduled", limitQuery(limit), nil)
	if err != nil {
		return nil, fmt.Errorf("get scheduled notifications: %w", err)
	}
	return decodeItems[notification.Scheduled](resp, "notifications", "scheduledNotifications")
}

func (c *Client) GetChatState(ctx context.Context) (*notification.ChatState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/chat/state", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get chat state: %w", err)
	}
	raw, ok := resp.payload("chatState", "state")
	if !ok {
		raw = resp.body
	}
	if len(raw) == 0 {
		return &notification.ChatState{}, nil
	}
	var state notification.ChatState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode chat state: %w", err)
	}
	return &state, nil
}

func (c *Client) GetChatMessages(ctx context.Context, sourceType notification.ChatSourceType, sourceID string, limit int) ([]notification.ChatMessage, error) {
	q := limitQuery(limit)
	q.Set("sourceType", string(sourceType))
	q.Set("sourceId", sourceID)
	resp, err := c.do(ctx, http.MethodGet, "/chat/messages", q, nil)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	messages, err := decodeItems[notification.ChatMessage](resp, "messages")
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	out := messages[:0]
	for _, m := range messages {
		if m.ID != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/config", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	raw, ok := resp.payload("config")
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (c *Client) GetEvents(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/events", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return rawItemsOf[scouting.Event](resp, "events")
}

func (c *Client) GetTeams(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/teams", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get teams: %w", err)
	}
	return decodeItems[json.RawMessage](resp, "teams")
}

func (c *Client) GetMatches(ctx context.Context, eventCode string) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventCode)+"/matches", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get matches for %s: %w", eventCode, err)
	}
	return decodeItems[json.RawMessage](resp, "matches")
}

func (c *Client) GetMetrics(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/metrics", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return decodeItems[json.RawMessage](resp, "metrics")
}

func (c *Client) GetScoutingData(ctx context.Context, eventCode string) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/scouting", url.Values{"eventCode": {eventCode}}, nil)
	if err != nil {
		return nil, fmt.Errorf("get scouting data for %s: %w", eventCode, err)
	}
	return rawItemsOf[scouting.Submission](resp, "scoutingData", "entries", "submissions")
}

// SubmitScouting posts one submission and returns the id the backend stored it under.
func (c *Client) SubmitScouting(ctx context.Context, s scouting.Submission) (int64, error) {
	resp, err := c.do(ctx, http.MethodPost, "/scouting", nil, s)
	if err != nil {
		return 0, fmt.Errorf("submit scouting %s: %w", s.IdentityKey(), err)
	}
	id := resp.fields.Int64("id", "entryId")
	if id == 0 {
		if data := resp.fields.Object("data", "entry"); len(data) > 0 {
			id = data.Int64("id", "entryId")
		}
	}
	return id, nil
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}
