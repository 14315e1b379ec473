package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/postern-ai/postern/pkg/protocol"
)

func (s *MCPServer) handleCheckStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	health, err := s.api.Health(ctx)
	if err != nil {
		return textError("failed to check status: " + err.Error()), nil
	}
	return textJSON(health)
}

func (s *MCPServer) handleListUnreadEmail(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	days := req.GetInt("days", 0)
	contextMode := req.GetString("context", "")

	resp, err := s.api.UnreadEmails(ctx, days, contextMode)
	if err != nil {
		return textError("failed to list unread email: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleListCalendarEvents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	start := req.GetString("start", "")
	end := req.GetString("end", "")
	calendars := req.GetString("calendars", "")

	resp, err := s.api.CalendarEvents(ctx, start, end, calendars)
	if err != nil {
		return textError("failed to list calendar events: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleCreateCalendarEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	calendarID, err := req.RequireString("calendar_id")
	if err != nil {
		return textError("missing required parameter: calendar_id"), nil
	}
	summary, err := req.RequireString("summary")
	if err != nil {
		return textError("missing required parameter: summary"), nil
	}
	start, err := req.RequireString("start")
	if err != nil {
		return textError("missing required parameter: start"), nil
	}
	end, err := req.RequireString("end")
	if err != nil {
		return textError("missing required parameter: end"), nil
	}

	create := protocol.CreateEventRequest{
		CalendarID:  calendarID,
		Summary:     summary,
		Description: req.GetString("description", ""),
		Start:       start,
		End:         end,
		Attendees:   splitList(req.GetString("attendees", "")),
	}

	resp, err := s.api.CreateEvent(ctx, create)
	if err != nil {
		return textError("failed to create calendar event: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleUpdateCalendarEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	eventID, err := req.RequireString("event_id")
	if err != nil {
		return textError("missing required parameter: event_id"), nil
	}
	calendarID, err := req.RequireString("calendar_id")
	if err != nil {
		return textError("missing required parameter: calendar_id"), nil
	}

	update := protocol.UpdateEventRequest{
		CalendarID:   calendarID,
		Summary:      req.GetString("summary", ""),
		Description:  req.GetString("description", ""),
		Start:        req.GetString("start", ""),
		End:          req.GetString("end", ""),
		AddAttendees: splitList(req.GetString("add_attendees", "")),
	}

	resp, err := s.api.UpdateEvent(ctx, eventID, update)
	if err != nil {
		return textError("failed to update calendar event: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleReplyEmail(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	threadID, err := req.RequireString("thread_id")
	if err != nil {
		return textError("missing required parameter: thread_id"), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return textError("missing required parameter: to"), nil
	}
	subject, err := req.RequireString("subject")
	if err != nil {
		return textError("missing required parameter: subject"), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return textError("missing required parameter: body"), nil
	}

	resp, err := s.api.ReplyEmail(ctx, protocol.ReplyRequest{
		ThreadID: threadID,
		To:       to,
		Subject:  subject,
		Body:     body,
	})
	if err != nil {
		return textError("failed to reply: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleSendEmail(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	to, err := req.RequireString("to")
	if err != nil {
		return textError("missing required parameter: to"), nil
	}
	subject, err := req.RequireString("subject")
	if err != nil {
		return textError("missing required parameter: subject"), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return textError("missing required parameter: body"), nil
	}

	resp, err := s.api.SendEmail(ctx, protocol.SendRequest{
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return textError("failed to send: " + err.Error()), nil
	}
	return textJSON(resp)
}

// splitList parses a comma-separated parameter into a slice, skipping blanks.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// textResult returns a successful text result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

// textError returns an error text result.
func textError(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// textJSON marshals v to indented JSON and returns it as a text result.
func textJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textError("failed to marshal response: " + err.Error()), nil
	}
	return textResult(string(data)), nil
}
