package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/postern-ai/postern/internal/config"
)

// maxUnreadResults caps one unread listing; the read policy already
// narrows the window, this only bounds the fetch fan-out.
const maxUnreadResults = 50

// Google is the in-process provider over the Gmail and Calendar APIs,
// authenticated by a persisted OAuth token that refreshes in place.
type Google struct {
	gmailSvc    *gmail.Service
	calendarSvc *calendar.Service
	account     string
}

// NewGoogle builds the in-process provider from OAuth client credentials
// and a previously issued token file.
func NewGoogle(ctx context.Context, gcfg config.GoogleProvider, account string, logger zerolog.Logger) (*Google, error) {
	source, err := NewPersistentTokenSource(OAuthConfig(gcfg.ClientID, gcfg.ClientSecret), gcfg.TokenFile, logger)
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(ctx, source)

	gmailSvc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	calendarSvc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	if account == "" {
		account = "me"
	}
	return &Google{gmailSvc: gmailSvc, calendarSvc: calendarSvc, account: account}, nil
}

func (g *Google) UnreadEmails(ctx context.Context, days int) ([]EmailItem, error) {
	query := fmt.Sprintf("is:unread newer_than:%dd", days)
	resp, err := g.gmailSvc.Users.Messages.List(g.account).
		Q(query).
		MaxResults(maxUnreadResults).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var items []EmailItem
	for _, m := range resp.Messages {
		item, err := g.getMessage(ctx, m.Id)
		if err != nil {
			continue // skip messages we can't fetch
		}
		items = append(items, item)
	}
	return items, nil
}

func (g *Google) getMessage(ctx context.Context, id string) (EmailItem, error) {
	msg, err := g.gmailSvc.Users.Messages.Get(g.account, id).
		Format("full").Context(ctx).Do()
	if err != nil {
		return EmailItem{}, fmt.Errorf("get message %s: %w", id, err)
	}

	item := EmailItem{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: strconv.FormatInt(msg.InternalDate, 10),
	}
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			item.From = header.Value
		case "to":
			item.To = header.Value
		case "subject":
			item.Subject = header.Value
		}
	}
	item.Body = extractPlainTextBody(msg.Payload)
	return item, nil
}

func extractPlainTextBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		if text := extractPlainTextBody(part); text != "" {
			return text
		}
	}
	return ""
}

func (g *Google) CalendarEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error) {
	resp, err := g.calendarSvc.Events.List(calendarID).
		SingleEvents(true).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", calendarID, err)
	}

	var events []Event
	for _, item := range resp.Items {
		events = append(events, mapEvent(item))
	}
	return events, nil
}

func mapEvent(item *calendar.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Location:    item.Location,
		HangoutLink: item.HangoutLink,
	}
	if item.Start != nil {
		ev.Start = item.Start.DateTime
		if ev.Start == "" {
			ev.Start = item.Start.Date // all-day event
		}
	}
	if item.End != nil {
		ev.End = item.End.DateTime
		if ev.End == "" {
			ev.End = item.End.Date
		}
	}
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			Self:           a.Self,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return ev
}

func (g *Google) CreateEvent(ctx context.Context, in CreateEventInput) (string, error) {
	item := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &calendar.EventDateTime{DateTime: in.Start},
		End:         &calendar.EventDateTime{DateTime: in.End},
	}
	for _, email := range in.Attendees {
		item.Attendees = append(item.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := g.calendarSvc.Events.Insert(in.CalendarID, item).
		SendUpdates(in.SendUpdates).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return created.Id, nil
}

func (g *Google) UpdateEvent(ctx context.Context, in UpdateEventInput) (string, error) {
	item := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
	}
	if in.Start != "" {
		item.Start = &calendar.EventDateTime{DateTime: in.Start}
	}
	if in.End != "" {
		item.End = &calendar.EventDateTime{DateTime: in.End}
	}

	// Patch replaces the attendee list wholesale, so adding means merging
	// with the current set.
	if len(in.AddAttendees) > 0 {
		existing, err := g.calendarSvc.Events.Get(in.CalendarID, in.EventID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("get event %s: %w", in.EventID, err)
		}
		item.Attendees = existing.Attendees
		for _, email := range in.AddAttendees {
			item.Attendees = append(item.Attendees, &calendar.EventAttendee{Email: email})
		}
	}

	patched, err := g.calendarSvc.Events.Patch(in.CalendarID, in.EventID, item).
		SendUpdates(in.SendUpdates).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}
	return patched.Id, nil
}

func (g *Google) ReplyEmail(ctx context.Context, in ReplyInput) (string, error) {
	// Thread the reply under the last message when its Message-ID is
	// reachable; a miss degrades to an unthreaded header set.
	inReplyTo := ""
	thread, err := g.gmailSvc.Users.Threads.Get(g.account, in.ThreadID).
		Format("metadata").MetadataHeaders("Message-ID").
		Context(ctx).Do()
	if err == nil && len(thread.Messages) > 0 {
		last := thread.Messages[len(thread.Messages)-1]
		if last.Payload != nil {
			for _, h := range last.Payload.Headers {
				if strings.EqualFold(h.Name, "Message-ID") {
					inReplyTo = h.Value
				}
			}
		}
	}

	raw := buildRFC2822(in.To, in.Subject, in.Body, inReplyTo)
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: in.ThreadID,
	}
	sent, err := g.gmailSvc.Users.Messages.Send(g.account, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("reply email: %w", err)
	}
	return sent.Id, nil
}

func (g *Google) SendEmail(ctx context.Context, in SendInput) (string, error) {
	raw := buildRFC2822(in.To, in.Subject, in.Body, "")
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	sent, err := g.gmailSvc.Users.Messages.Send(g.account, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return sent.Id, nil
}

// buildRFC2822 constructs a minimal RFC 2822 message.
func buildRFC2822(to, subject, body, inReplyTo string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
		fmt.Fprintf(&b, "References: %s\r\n", inReplyTo)
	}
	fmt.Fprintf(&b, "Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&b, "\r\n%s", body)
	return b.String()
}
