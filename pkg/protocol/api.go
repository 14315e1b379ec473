// Package protocol defines the JSON wire types of the posternd HTTP API,
// shared by the daemon, posternctl, and the MCP adapter.
package protocol

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// TokenRequest is the body of POST /v1/auth/token.
type TokenRequest struct {
	Sub string `json:"sub"`
}

// TokenResponse is returned by POST /v1/auth/token.
type TokenResponse struct {
	Token      string `json:"token"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// EmailItem is one entry in the GET /v1/email/unread response.
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

// EmailWarning flags an item carrying authentication artifacts.
type EmailWarning struct {
	ID         string `json:"id"`
	ThreadID   string `json:"threadId"`
	WouldBlock bool   `json:"wouldBlock"`
	Reason     string `json:"reason"`
	Category   string `json:"category"`
}

// UnreadResponse is returned by GET /v1/email/unread.
type UnreadResponse struct {
	Days        int            `json:"days"`
	ContextMode string         `json:"contextMode"`
	Count       int            `json:"count"`
	Items       []EmailItem    `json:"items"`
	Warnings    []EmailWarning `json:"warnings,omitempty"`
}

// Attendee is a privacy-projected calendar event attendee.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	Self           bool   `json:"self,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// EventItem is one entry in the GET /v1/calendar/events response. Location,
// hangoutLink, and attendees are present only when their policy gate is on.
type EventItem struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Location    string     `json:"location,omitempty"`
	HangoutLink string     `json:"hangoutLink,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// EventsResponse is returned by GET /v1/calendar/events.
type EventsResponse struct {
	Start     string      `json:"start"`
	End       string      `json:"end"`
	Calendars []string    `json:"calendars"`
	Count     int         `json:"count"`
	Items     []EventItem `json:"items"`
}

// CreateEventRequest is the body of POST /v1/calendar/events.
type CreateEventRequest struct {
	CalendarID  string   `json:"calendarId"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees,omitempty"`
}

// UpdateEventRequest is the body of PATCH /v1/calendar/events/{id}.
type UpdateEventRequest struct {
	CalendarID   string   `json:"calendarId"`
	Summary      string   `json:"summary,omitempty"`
	Description  string   `json:"description,omitempty"`
	Start        string   `json:"start,omitempty"`
	End          string   `json:"end,omitempty"`
	AddAttendees []string `json:"addAttendees,omitempty"`
}

// ReplyRequest is the body of POST /v1/email/reply.
type ReplyRequest struct {
	ThreadID string `json:"threadId"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// SendRequest is the body of POST /v1/email/send.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WriteResponse is returned by the calendar write and email send routes.
type WriteResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}
