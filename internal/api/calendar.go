package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/postern-ai/postern/internal/audit"
	"github.com/postern-ai/postern/internal/policy"
	"github.com/postern-ai/postern/internal/provider"
	"github.com/postern-ai/postern/pkg/protocol"
)

// handleCalendarEvents lists events across the resolved calendar set.
// Calendars are fetched concurrently; merged order is whatever the
// goroutines produced.
func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	q := r.URL.Query()

	rng := policy.ClampCalendarRange(q.Get("start"), q.Get("end"), time.Now().UTC(), s.cfg.CalendarRead)
	calendars := policy.ParseCalendarIDs(q.Get("calendars"), s.cfg.Calendar.AllowedCalendarIDs)

	ctx := context.WithoutCancel(r.Context())
	type fetched struct {
		events []provider.Event
		err    error
	}
	results := make([]fetched, len(calendars))
	var wg sync.WaitGroup
	for i, id := range calendars {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			events, err := s.provider.CalendarEvents(ctx, id, rng.Start, rng.End)
			results[i] = fetched{events: events, err: err}
		}(i, id)
	}
	wg.Wait()

	items := []protocol.EventItem{}
	for _, res := range results {
		if res.err != nil {
			s.upstreamFailure(w, r, res.err)
			return
		}
		for _, ev := range res.events {
			items = append(items, s.projectEvent(ev))
		}
	}

	pol := s.cfg.CalendarRead
	startStr := rng.Start.Format(time.RFC3339)
	endStr := rng.End.Format(time.RFC3339)
	if !s.auditEntry(w, audit.ActionCalendarEvents, principal, map[string]any{
		"start":               startStr,
		"end":                 endStr,
		"calendars":           calendars,
		"count":               len(items),
		"allowLocation":       pol.AllowLocation,
		"allowMeetingUrls":    pol.AllowMeetingUrls,
		"allowAttendeeEmails": pol.AllowAttendeeEmails,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.EventsResponse{
		Start:     startStr,
		End:       endStr,
		Calendars: calendars,
		Count:     len(items),
		Items:     items,
	})
}

// projectEvent narrows an upstream event to the policy-permitted fields.
// Gated fields are absent from the JSON, not empty.
func (s *Server) projectEvent(ev provider.Event) protocol.EventItem {
	pol := s.cfg.CalendarRead
	item := protocol.EventItem{
		ID:      ev.ID,
		Summary: ev.Summary,
		Start:   ev.Start,
		End:     ev.End,
	}
	if pol.AllowLocation {
		item.Location = ev.Location
	}
	if pol.AllowMeetingUrls {
		item.HangoutLink = ev.HangoutLink
	}
	if pol.AllowAttendeeEmails {
		for _, a := range ev.Attendees {
			item.Attendees = append(item.Attendees, protocol.Attendee{
				Email:          a.Email,
				DisplayName:    a.DisplayName,
				Self:           a.Self,
				ResponseStatus: a.ResponseStatus,
			})
		}
	}
	return item
}

func (s *Server) handleCalendarCreate(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	pol := s.cfg.CalendarWrite

	if !pol.Enabled {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "calendar_write_disabled",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "calendar_write_disabled")
		return
	}

	var req protocol.CreateEventRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.CalendarID == "" || req.Summary == "" || req.Start == "" || req.End == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if !policy.WriteCalendarAllowed(req.CalendarID, pol.AllowedCalendarIDs, s.cfg.Calendar.AllowedCalendarIDs) {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "calendar_not_allowed",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "calendar_not_allowed")
		return
	}

	attendees := req.Attendees
	if !pol.AllowAttendees {
		attendees = nil // dropped, not rejected
	}

	if !s.consumeQuota(w, r, principal, s.calendarQuota) {
		return
	}

	id, err := s.provider.CreateEvent(context.WithoutCancel(r.Context()), provider.CreateEventInput{
		CalendarID:  req.CalendarID,
		Summary:     req.Summary,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		Attendees:   attendees,
		SendUpdates: pol.SendUpdates,
	})
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	if !s.auditEntry(w, audit.ActionCalendarCreate, principal, map[string]any{
		"calendarId": req.CalendarID,
		"id":         id,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.WriteResponse{OK: true, ID: id})
}

func (s *Server) handleCalendarUpdate(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	pol := s.cfg.CalendarWrite
	eventID := r.PathValue("id")

	if !pol.Enabled {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "calendar_write_disabled",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "calendar_write_disabled")
		return
	}

	var req protocol.UpdateEventRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.CalendarID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if !policy.WriteCalendarAllowed(req.CalendarID, pol.AllowedCalendarIDs, s.cfg.Calendar.AllowedCalendarIDs) {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "calendar_not_allowed",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "calendar_not_allowed")
		return
	}

	addAttendees := req.AddAttendees
	if !pol.AllowAttendees {
		addAttendees = nil
	}

	if !s.consumeQuota(w, r, principal, s.calendarQuota) {
		return
	}

	id, err := s.provider.UpdateEvent(context.WithoutCancel(r.Context()), provider.UpdateEventInput{
		CalendarID:   req.CalendarID,
		EventID:      eventID,
		Summary:      req.Summary,
		Description:  req.Description,
		Start:        req.Start,
		End:          req.End,
		AddAttendees: addAttendees,
		SendUpdates:  pol.SendUpdates,
	})
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	if !s.auditEntry(w, audit.ActionCalendarUpdate, principal, map[string]any{
		"calendarId": req.CalendarID,
		"eventId":    eventID,
		"id":         id,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.WriteResponse{OK: true, ID: id})
}
