// Package provider shapes upstream Gmail and Calendar invocations. Two
// implementations exist: an external CLI invoked once per call, and an
// in-process Google API client. Both contain upstream failures to error
// returns; callers present every provider error as the same upstream
// failure.
package provider

import (
	"context"
	"time"
)

// EmailItem is a normalized unread message from the upstream.
type EmailItem struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	From         string `json:"from"`
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Snippet      string `json:"snippet"`
	Body         string `json:"body"`
	InternalDate string `json:"internalDate,omitempty"`
}

// Attendee mirrors the upstream attendee shape.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	Self           bool   `json:"self,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// Event is a normalized calendar event from the upstream. Start and End
// stay in the upstream's string form (RFC 3339 or all-day date).
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Location    string     `json:"location,omitempty"`
	HangoutLink string     `json:"hangoutLink,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// CreateEventInput carries a policy-filtered create request. The JSON
// form is the CLI payload; the calendar id travels as an argument.
type CreateEventInput struct {
	CalendarID  string   `json:"-"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees,omitempty"`
	SendUpdates string   `json:"sendUpdates"`
}

// UpdateEventInput carries a policy-filtered patch request.
type UpdateEventInput struct {
	CalendarID   string   `json:"-"`
	EventID      string   `json:"-"`
	Summary      string   `json:"summary,omitempty"`
	Description  string   `json:"description,omitempty"`
	Start        string   `json:"start,omitempty"`
	End          string   `json:"end,omitempty"`
	AddAttendees []string `json:"addAttendees,omitempty"`
	SendUpdates  string   `json:"sendUpdates"`
}

// ReplyInput carries a within-thread reply.
type ReplyInput struct {
	ThreadID string `json:"threadId"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// SendInput carries a new outbound message.
type SendInput struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Provider is the upstream adapter.
type Provider interface {
	UnreadEmails(ctx context.Context, days int) ([]EmailItem, error)
	CalendarEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, in CreateEventInput) (string, error)
	UpdateEvent(ctx context.Context, in UpdateEventInput) (string, error)
	ReplyEmail(ctx context.Context, in ReplyInput) (string, error)
	SendEmail(ctx context.Context, in SendInput) (string, error)
}
