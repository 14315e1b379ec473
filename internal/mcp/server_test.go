package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/postern-ai/postern/pkg/protocol"
)

// mockAPI implements WrapperAPI for unit tests.
type mockAPI struct {
	health *protocol.HealthResponse
	unread *protocol.UnreadResponse
	events *protocol.EventsResponse
	write  *protocol.WriteResponse
	err    error

	gotDays        int
	gotContextMode string
	gotStart       string
	gotEnd         string
	gotCalendars   string
	gotCreate      protocol.CreateEventRequest
	gotEventID     string
	gotUpdate      protocol.UpdateEventRequest
	gotReply       protocol.ReplyRequest
	gotSend        protocol.SendRequest
}

func (m *mockAPI) Health(_ context.Context) (*protocol.HealthResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

func (m *mockAPI) UnreadEmails(_ context.Context, days int, contextMode string) (*protocol.UnreadResponse, error) {
	m.gotDays = days
	m.gotContextMode = contextMode
	if m.err != nil {
		return nil, m.err
	}
	return m.unread, nil
}

func (m *mockAPI) CalendarEvents(_ context.Context, start, end, calendars string) (*protocol.EventsResponse, error) {
	m.gotStart = start
	m.gotEnd = end
	m.gotCalendars = calendars
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

func (m *mockAPI) CreateEvent(_ context.Context, req protocol.CreateEventRequest) (*protocol.WriteResponse, error) {
	m.gotCreate = req
	if m.err != nil {
		return nil, m.err
	}
	return m.write, nil
}

func (m *mockAPI) UpdateEvent(_ context.Context, eventID string, req protocol.UpdateEventRequest) (*protocol.WriteResponse, error) {
	m.gotEventID = eventID
	m.gotUpdate = req
	if m.err != nil {
		return nil, m.err
	}
	return m.write, nil
}

func (m *mockAPI) ReplyEmail(_ context.Context, req protocol.ReplyRequest) (*protocol.WriteResponse, error) {
	m.gotReply = req
	if m.err != nil {
		return nil, m.err
	}
	return m.write, nil
}

func (m *mockAPI) SendEmail(_ context.Context, req protocol.SendRequest) (*protocol.WriteResponse, error) {
	m.gotSend = req
	if m.err != nil {
		return nil, m.err
	}
	return m.write, nil
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	return result.Content[0].(mcplib.TextContent).Text
}

func toolRequest(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestCheckStatus(t *testing.T) {
	s := &MCPServer{api: &mockAPI{health: &protocol.HealthResponse{OK: true}}}

	result, err := s.handleCheckStatus(context.Background(), mcplib.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success, got error result")
	}

	var health protocol.HealthResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &health); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !health.OK {
		t.Error("ok = false, want true")
	}
}

func TestListUnreadEmail(t *testing.T) {
	mock := &mockAPI{
		unread: &protocol.UnreadResponse{
			Days:        2,
			ContextMode: "latest_only",
			Count:       1,
			Items:       []protocol.EmailItem{{ID: "m1", ThreadID: "t1", Subject: "lunch?"}},
			Warnings: []protocol.EmailWarning{
				{ID: "m2", ThreadID: "t2", WouldBlock: true, Reason: "auth_artifact_detected", Category: "auth_sensitive"},
			},
		},
	}
	s := &MCPServer{api: mock}

	result, err := s.handleListUnreadEmail(context.Background(), toolRequest(map[string]any{
		"days":    float64(3),
		"context": "latest_only",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotDays != 3 {
		t.Errorf("days sent = %d, want 3", mock.gotDays)
	}
	if mock.gotContextMode != "latest_only" {
		t.Errorf("contextMode sent = %q, want latest_only", mock.gotContextMode)
	}

	var resp protocol.UnreadResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
	if len(resp.Warnings) != 1 || !resp.Warnings[0].WouldBlock {
		t.Errorf("warnings = %+v, want one would-block entry", resp.Warnings)
	}
}

func TestListUnreadEmailDefaults(t *testing.T) {
	mock := &mockAPI{unread: &protocol.UnreadResponse{Days: 7, ContextMode: "latest_only"}}
	s := &MCPServer{api: mock}

	result, err := s.handleListUnreadEmail(context.Background(), mcplib.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotDays != 0 {
		t.Errorf("days sent = %d, want 0 (daemon default)", mock.gotDays)
	}
	if mock.gotContextMode != "" {
		t.Errorf("contextMode sent = %q, want empty", mock.gotContextMode)
	}
}

func TestListCalendarEvents(t *testing.T) {
	mock := &mockAPI{
		events: &protocol.EventsResponse{
			Start:     "2026-03-01T00:00:00Z",
			End:       "2026-03-08T00:00:00Z",
			Calendars: []string{"primary", "team"},
			Count:     1,
			Items:     []protocol.EventItem{{ID: "evt-1", Summary: "Standup"}},
		},
	}
	s := &MCPServer{api: mock}

	result, err := s.handleListCalendarEvents(context.Background(), toolRequest(map[string]any{
		"start":     "2026-03-01T00:00:00Z",
		"end":       "2026-03-08T00:00:00Z",
		"calendars": "primary,team",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotStart != "2026-03-01T00:00:00Z" || mock.gotEnd != "2026-03-08T00:00:00Z" {
		t.Errorf("range sent = %q..%q", mock.gotStart, mock.gotEnd)
	}
	if mock.gotCalendars != "primary,team" {
		t.Errorf("calendars sent = %q, want primary,team", mock.gotCalendars)
	}

	var resp protocol.EventsResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || resp.Items[0].ID != "evt-1" {
		t.Errorf("items = %+v, want evt-1", resp.Items)
	}
}

func TestCreateCalendarEvent(t *testing.T) {
	mock := &mockAPI{write: &protocol.WriteResponse{OK: true, ID: "created-1"}}
	s := &MCPServer{api: mock}

	result, err := s.handleCreateCalendarEvent(context.Background(), toolRequest(map[string]any{
		"calendar_id": "team",
		"summary":     "Planning",
		"start":       "2026-03-02T10:00:00Z",
		"end":         "2026-03-02T11:00:00Z",
		"attendees":   "alice@example.com, bob@example.com,,",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotCreate.CalendarID != "team" || mock.gotCreate.Summary != "Planning" {
		t.Errorf("create sent = %+v", mock.gotCreate)
	}
	want := []string{"alice@example.com", "bob@example.com"}
	if len(mock.gotCreate.Attendees) != 2 || mock.gotCreate.Attendees[0] != want[0] || mock.gotCreate.Attendees[1] != want[1] {
		t.Errorf("attendees sent = %v, want %v", mock.gotCreate.Attendees, want)
	}

	var resp protocol.WriteResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.OK || resp.ID != "created-1" {
		t.Errorf("response = %+v, want ok created-1", resp)
	}
}

func TestCreateCalendarEventMissingSummary(t *testing.T) {
	s := &MCPServer{api: &mockAPI{}}

	result, err := s.handleCreateCalendarEvent(context.Background(), toolRequest(map[string]any{
		"calendar_id": "team",
		"start":       "2026-03-02T10:00:00Z",
		"end":         "2026-03-02T11:00:00Z",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing summary")
	}
	if text := resultText(t, result); text != "missing required parameter: summary" {
		t.Errorf("error text = %q", text)
	}
}

func TestUpdateCalendarEvent(t *testing.T) {
	mock := &mockAPI{write: &protocol.WriteResponse{OK: true, ID: "evt-9"}}
	s := &MCPServer{api: mock}

	result, err := s.handleUpdateCalendarEvent(context.Background(), toolRequest(map[string]any{
		"event_id":      "evt-9",
		"calendar_id":   "primary",
		"summary":       "Moved",
		"add_attendees": "carol@example.com",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotEventID != "evt-9" {
		t.Errorf("event id sent = %q, want evt-9", mock.gotEventID)
	}
	if mock.gotUpdate.CalendarID != "primary" || mock.gotUpdate.Summary != "Moved" {
		t.Errorf("update sent = %+v", mock.gotUpdate)
	}
	if len(mock.gotUpdate.AddAttendees) != 1 || mock.gotUpdate.AddAttendees[0] != "carol@example.com" {
		t.Errorf("addAttendees sent = %v", mock.gotUpdate.AddAttendees)
	}
}

func TestReplyEmail(t *testing.T) {
	mock := &mockAPI{write: &protocol.WriteResponse{OK: true, ID: "sent-1"}}
	s := &MCPServer{api: mock}

	result, err := s.handleReplyEmail(context.Background(), toolRequest(map[string]any{
		"thread_id": "t1",
		"to":        "ok@example.com",
		"subject":   "Re: lunch",
		"body":      "sounds good",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	if mock.gotReply.ThreadID != "t1" || mock.gotReply.To != "ok@example.com" {
		t.Errorf("reply sent = %+v", mock.gotReply)
	}
}

func TestSendEmailMissingBody(t *testing.T) {
	s := &MCPServer{api: &mockAPI{}}

	result, err := s.handleSendEmail(context.Background(), toolRequest(map[string]any{
		"to":      "ok@example.com",
		"subject": "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing body")
	}
}

func TestToolErrorRelaysDenyReason(t *testing.T) {
	mock := &mockAPI{err: errors.New("/v1/email/send: reply_only_mode (status 403)")}
	s := &MCPServer{api: mock}

	result, err := s.handleSendEmail(context.Background(), toolRequest(map[string]any{
		"to":      "ok@example.com",
		"subject": "hello",
		"body":    "hi",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when the daemon denies")
	}
	if text := resultText(t, result); !strings.Contains(text, "reply_only_mode") {
		t.Errorf("error text = %q, want the daemon's deny reason relayed", text)
	}
}

func TestAPIClientEndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "invalid_api_key"})
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/healthz":
			json.NewEncoder(w).Encode(protocol.HealthResponse{OK: true})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/email/unread":
			if got := r.URL.Query().Get("days"); got != "4" {
				t.Errorf("days query = %q, want 4", got)
			}
			if got := r.URL.Query().Get("contextMode"); got != "full_thread" {
				t.Errorf("contextMode query = %q, want full_thread", got)
			}
			json.NewEncoder(w).Encode(protocol.UnreadResponse{Days: 4, ContextMode: "full_thread", Count: 0, Items: []protocol.EmailItem{}})
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/calendar/events/evt-7":
			var req protocol.UpdateEventRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.CalendarID != "primary" {
				t.Errorf("calendarId = %q, want primary", req.CalendarID)
			}
			json.NewEncoder(w).Encode(protocol.WriteResponse{OK: true, ID: "evt-7"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/email/send":
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "reply_only_mode"})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "deny-by-default"})
		}
	}))
	defer ts.Close()

	c := NewAPIClient(ts.URL, "k123")
	ctx := context.Background()

	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !health.OK {
		t.Error("health.ok = false, want true")
	}

	unread, err := c.UnreadEmails(ctx, 4, "full_thread")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread.Days != 4 {
		t.Errorf("days = %d, want 4", unread.Days)
	}

	wr, err := c.UpdateEvent(ctx, "evt-7", protocol.UpdateEventRequest{CalendarID: "primary", Summary: "Moved"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if wr.ID != "evt-7" {
		t.Errorf("id = %q, want evt-7", wr.ID)
	}

	_, err = c.SendEmail(ctx, protocol.SendRequest{To: "a@example.com", Subject: "s", Body: "b"})
	if err == nil {
		t.Fatal("expected error for denied send")
	}
	if !strings.Contains(err.Error(), "reply_only_mode") || !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want relayed deny reason with status", err)
	}
}

func TestAPIClientWrongKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "invalid_api_key"})
	}))
	defer ts.Close()

	c := NewAPIClient(ts.URL, "wrong")
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("error = %v, want invalid_api_key relayed", err)
	}
}
