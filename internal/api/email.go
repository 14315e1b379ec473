package api

import (
	"context"
	"net/http"

	"github.com/postern-ai/postern/internal/audit"
	"github.com/postern-ai/postern/internal/config"
	"github.com/postern-ai/postern/internal/policy"
	"github.com/postern-ai/postern/internal/provider"
	"github.com/postern-ai/postern/internal/quota"
	"github.com/postern-ai/postern/internal/redact"
	"github.com/postern-ai/postern/pkg/protocol"
)

// handleUnread lists unread mail for the clamped window, classifying each
// item for authentication artifacts. Under latest_only the quoted tail is
// stripped first, so a sensitive phrase buried in an earlier reply cannot
// poison the whole thread.
func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	pol := s.cfg.EmailPolicy

	days := policy.ClampDays(r.URL.Query().Get("days"), pol.MaxRecentDays)
	mode := pol.ContextMode
	if q := r.URL.Query().Get("contextMode"); q == config.ContextFullThread || q == config.ContextLatestOnly {
		mode = q
	}

	// The client going away must not abandon work we will audit.
	items, err := s.provider.UnreadEmails(context.WithoutCancel(r.Context()), days)
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	resp := protocol.UnreadResponse{
		Days:        days,
		ContextMode: mode,
		Items:       []protocol.EmailItem{},
	}
	blocked := 0
	for _, m := range items {
		snippet, body := m.Snippet, m.Body
		if mode == config.ContextLatestOnly {
			snippet = redact.StripQuoted(snippet)
			body = redact.StripQuoted(body)
		}

		if redact.Sensitive(m.Subject, snippet, body) {
			blocked++
			resp.Warnings = append(resp.Warnings, protocol.EmailWarning{
				ID:         m.ID,
				ThreadID:   m.ThreadID,
				WouldBlock: true,
				Reason:     "auth_artifact_detected",
				Category:   "auth_sensitive",
			})
			if pol.AuthHandlingMode == config.AuthModeBlock {
				continue
			}
		}

		resp.Items = append(resp.Items, protocol.EmailItem{
			ID:           m.ID,
			ThreadID:     m.ThreadID,
			From:         m.From,
			To:           m.To,
			Subject:      m.Subject,
			Snippet:      snippet,
			Body:         body,
			InternalDate: m.InternalDate,
		})
	}
	resp.Count = len(resp.Items)

	if !s.auditEntry(w, audit.ActionEmailUnread, principal, map[string]any{
		"days":             days,
		"contextMode":      mode,
		"authHandlingMode": pol.AuthHandlingMode,
		"blockedCount":     blocked,
		"count":            resp.Count,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReply sends a message into an existing thread.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req protocol.ReplyRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ThreadID == "" || req.To == "" || req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	pol := s.cfg.Outbound
	if !pol.AllowReplyToAnyone && !policy.AllowedRecipient(req.To, pol) {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "recipient_not_allowed",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "recipient_not_allowed")
		return
	}

	if !s.consumeQuota(w, r, principal, s.sendQuota) {
		return
	}

	id, err := s.provider.ReplyEmail(context.WithoutCancel(r.Context()), provider.ReplyInput{
		ThreadID: req.ThreadID,
		To:       req.To,
		Subject:  req.Subject,
		Body:     req.Body,
	})
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	if !s.auditEntry(w, audit.ActionEmailReply, principal, map[string]any{
		"threadId": req.ThreadID,
		"to":       req.To,
		"id":       id,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.WriteResponse{OK: true, ID: id})
}

// handleSend sends a new message outside any thread. Blocked outright
// under the reply-only posture.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	pol := s.cfg.Outbound

	if pol.ReplyOnlyDefault {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "reply_only_mode",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "reply_only_mode")
		return
	}

	var req protocol.SendRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.To == "" || req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if !policy.AllowedRecipient(req.To, pol) {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": "recipient_not_allowed",
		}) {
			return
		}
		writeError(w, http.StatusForbidden, "recipient_not_allowed")
		return
	}

	if !s.consumeQuota(w, r, principal, s.sendQuota) {
		return
	}

	id, err := s.provider.SendEmail(context.WithoutCancel(r.Context()), provider.SendInput{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	if !s.auditEntry(w, audit.ActionEmailSend, principal, map[string]any{
		"to": req.To,
		"id": id,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.WriteResponse{OK: true, ID: id})
}

// consumeQuota charges one unit from the counter before the side-effect
// runs. A consumed unit is never refunded on provider failure.
func (s *Server) consumeQuota(w http.ResponseWriter, r *http.Request, principal string, counter *quota.Counter) bool {
	verdict, err := counter.Consume()
	if err != nil {
		s.upstreamFailure(w, r, err)
		return false
	}
	if !verdict.OK {
		if !s.auditEntry(w, audit.ActionPolicyDeny, principal, map[string]any{
			"path":   r.URL.Path,
			"reason": verdict.Reason,
		}) {
			return false
		}
		writeError(w, http.StatusTooManyRequests, verdict.Reason)
		return false
	}
	return true
}
