package mcp

import (
	"context"
	"log"
	"os"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// MCPServer exposes the secure wrapper to agent runtimes via MCP. Every tool
// call goes through the daemon's HTTP API, so admission, policy, and audit
// apply exactly as they would for a direct client.
type MCPServer struct {
	api    WrapperAPI
	logger zerolog.Logger
}

// New creates an MCPServer. Call Run() to start serving on stdio.
func New(cfg Config, logger zerolog.Logger) *MCPServer {
	return &MCPServer{
		api:    NewAPIClient(cfg.Proxy.URL, cfg.Proxy.APIKey),
		logger: logger.With().Str("component", "mcp").Logger(),
	}
}

// SetWrapperAPI overrides the daemon API client. Intended for testing with a mock.
func (s *MCPServer) SetWrapperAPI(api WrapperAPI) {
	s.api = api
}

// Run registers MCP tools and serves on stdio. It blocks until stdin is
// closed or the context is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	srv := mcpserver.NewMCPServer(
		"postern",
		"0.1.0",
		mcpserver.WithRecovery(),
	)

	s.registerTools(srv)

	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info().Msg("MCP server starting on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *MCPServer) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcplib.NewTool("check_status",
			mcplib.WithDescription("Check that the postern daemon is reachable and healthy"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleCheckStatus,
	)

	srv.AddTool(
		mcplib.NewTool("list_unread_email",
			mcplib.WithDescription("List unread email from the wrapped mailbox. Responses are filtered: authentication artifacts (OTPs, verification links, reset codes) are blocked or flagged per daemon policy, and the look-back window is clamped server-side"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithNumber("days", mcplib.Description("Look-back window in days; the daemon clamps it to its configured maximum")),
			mcplib.WithString("context", mcplib.Description("Context mode override: \"full_thread\" or \"latest_only\"")),
		),
		s.handleListUnreadEmail,
	)

	srv.AddTool(
		mcplib.NewTool("list_calendar_events",
			mcplib.WithDescription("List calendar events in a time range. The daemon clamps the range and hides location, meeting links, and attendee emails unless policy allows them"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("start", mcplib.Description("Range start, RFC3339 (e.g. \"2026-03-01T00:00:00Z\")")),
			mcplib.WithString("end", mcplib.Description("Range end, RFC3339")),
			mcplib.WithString("calendars", mcplib.Description("Comma-separated calendar IDs; defaults to the daemon's allowlist")),
		),
		s.handleListCalendarEvents,
	)

	srv.AddTool(
		mcplib.NewTool("create_calendar_event",
			mcplib.WithDescription("Create a calendar event through the wrapper. Attendees may be dropped and invite notifications forced per daemon policy; writes count against the hourly and daily event quota"),
			mcplib.WithString("calendar_id", mcplib.Required(), mcplib.Description("Target calendar ID (must be on the daemon's write allowlist)")),
			mcplib.WithString("summary", mcplib.Required(), mcplib.Description("Event title")),
			mcplib.WithString("start", mcplib.Required(), mcplib.Description("Event start, RFC3339")),
			mcplib.WithString("end", mcplib.Required(), mcplib.Description("Event end, RFC3339")),
			mcplib.WithString("description", mcplib.Description("Event description")),
			mcplib.WithString("attendees", mcplib.Description("Comma-separated attendee emails")),
		),
		s.handleCreateCalendarEvent,
	)

	srv.AddTool(
		mcplib.NewTool("update_calendar_event",
			mcplib.WithDescription("Update an existing calendar event through the wrapper. Only provided fields change; added attendees may be dropped per daemon policy"),
			mcplib.WithString("event_id", mcplib.Required(), mcplib.Description("Event ID to update")),
			mcplib.WithString("calendar_id", mcplib.Required(), mcplib.Description("Calendar holding the event")),
			mcplib.WithString("summary", mcplib.Description("New event title")),
			mcplib.WithString("description", mcplib.Description("New event description")),
			mcplib.WithString("start", mcplib.Description("New start, RFC3339")),
			mcplib.WithString("end", mcplib.Description("New end, RFC3339")),
			mcplib.WithString("add_attendees", mcplib.Description("Comma-separated attendee emails to add")),
		),
		s.handleUpdateCalendarEvent,
	)

	srv.AddTool(
		mcplib.NewTool("reply_email",
			mcplib.WithDescription("Reply within an existing email thread. The recipient must be on the daemon's allowlist unless policy says otherwise; sends count against the hourly and daily email quota"),
			mcplib.WithString("thread_id", mcplib.Required(), mcplib.Description("Thread to reply in")),
			mcplib.WithString("to", mcplib.Required(), mcplib.Description("Recipient email address")),
			mcplib.WithString("subject", mcplib.Required(), mcplib.Description("Reply subject")),
			mcplib.WithString("body", mcplib.Required(), mcplib.Description("Plain-text reply body")),
		),
		s.handleReplyEmail,
	)

	srv.AddTool(
		mcplib.NewTool("send_email",
			mcplib.WithDescription("Send a new email. Refused entirely when the daemon runs in reply-only mode; sends count against the hourly and daily email quota"),
			mcplib.WithString("to", mcplib.Required(), mcplib.Description("Recipient email address")),
			mcplib.WithString("subject", mcplib.Required(), mcplib.Description("Email subject")),
			mcplib.WithString("body", mcplib.Required(), mcplib.Description("Plain-text email body")),
		),
		s.handleSendEmail,
	)
}
