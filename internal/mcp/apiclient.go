package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/postern-ai/postern/pkg/protocol"
)

// WrapperAPI is the interface for calling the posternd HTTP API.
// Implemented by APIClient; tests can provide a mock.
type WrapperAPI interface {
	Health(ctx context.Context) (*protocol.HealthResponse, error)
	UnreadEmails(ctx context.Context, days int, contextMode string) (*protocol.UnreadResponse, error)
	CalendarEvents(ctx context.Context, start, end, calendars string) (*protocol.EventsResponse, error)
	CreateEvent(ctx context.Context, req protocol.CreateEventRequest) (*protocol.WriteResponse, error)
	UpdateEvent(ctx context.Context, eventID string, req protocol.UpdateEventRequest) (*protocol.WriteResponse, error)
	ReplyEmail(ctx context.Context, req protocol.ReplyRequest) (*protocol.WriteResponse, error)
	SendEmail(ctx context.Context, req protocol.SendRequest) (*protocol.WriteResponse, error)
}

// APIClient talks to the posternd daemon over its loopback HTTP API.
// Every request carries the static API key, so calls pass through the
// daemon's admission pipeline like any other client.
type APIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAPIClient creates an APIClient for the daemon at baseURL.
func NewAPIClient(baseURL, apiKey string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var resp protocol.HealthResponse
	if err := c.getJSON(ctx, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) UnreadEmails(ctx context.Context, days int, contextMode string) (*protocol.UnreadResponse, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	if contextMode != "" {
		q.Set("contextMode", contextMode)
	}
	var resp protocol.UnreadResponse
	if err := c.getJSON(ctx, "/v1/email/unread", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) CalendarEvents(ctx context.Context, start, end, calendars string) (*protocol.EventsResponse, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	if calendars != "" {
		q.Set("calendars", calendars)
	}
	var resp protocol.EventsResponse
	if err := c.getJSON(ctx, "/v1/calendar/events", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) CreateEvent(ctx context.Context, req protocol.CreateEventRequest) (*protocol.WriteResponse, error) {
	var resp protocol.WriteResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/calendar/events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) UpdateEvent(ctx context.Context, eventID string, req protocol.UpdateEventRequest) (*protocol.WriteResponse, error) {
	var resp protocol.WriteResponse
	path := "/v1/calendar/events/" + url.PathEscape(eventID)
	if err := c.sendJSON(ctx, http.MethodPatch, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) ReplyEmail(ctx context.Context, req protocol.ReplyRequest) (*protocol.WriteResponse, error) {
	var resp protocol.WriteResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/email/reply", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) SendEmail(ctx context.Context, req protocol.SendRequest) (*protocol.WriteResponse, error) {
	var resp protocol.WriteResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/email/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, dst)
}

func (c *APIClient) sendJSON(ctx context.Context, method, path string, body, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, dst)
}

func (c *APIClient) do(req *http.Request, path string, dst any) error {
	req.Header.Set("x-api-key", c.apiKey)
	resp, err := c.client.Do(req) // #nosec G704 -- URL is the configured daemon base, not user input
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr protocol.ErrorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
