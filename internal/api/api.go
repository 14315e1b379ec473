// Package api serves the wrapper's loopback HTTP surface: admission,
// policy enforcement, provider fan-out, and the audit hooks around them.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/postern-ai/postern/internal/audit"
	"github.com/postern-ai/postern/internal/auth"
	"github.com/postern-ai/postern/internal/config"
	"github.com/postern-ai/postern/internal/provider"
	"github.com/postern-ai/postern/internal/quota"
	"github.com/postern-ai/postern/internal/ratelimit"
	"github.com/postern-ai/postern/pkg/protocol"
)

type principalKeyType struct{}

var principalKey principalKeyType

// Server serves the wrapper API on the configured loopback address.
type Server struct {
	cfg           config.Config
	auth          *auth.Authenticator
	limiter       *ratelimit.Limiter
	audit         *audit.Logger
	sendQuota     *quota.Counter
	calendarQuota *quota.Counter
	provider      provider.Provider
	httpServer    *http.Server
	logger        zerolog.Logger
}

// New creates the API server and registers its routes.
func New(cfg config.Config, authn *auth.Authenticator, limiter *ratelimit.Limiter,
	auditLog *audit.Logger, sendQuota, calendarQuota *quota.Counter,
	prov provider.Provider, logger zerolog.Logger) *Server {

	s := &Server{
		cfg:           cfg,
		auth:          authn,
		limiter:       limiter,
		audit:         auditLog,
		sendQuota:     sendQuota,
		calendarQuota: calendarQuota,
		provider:      prov,
		logger:        logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/auth/token", s.handleToken)
	mux.HandleFunc("GET /v1/email/unread", s.admit(s.handleUnread))
	mux.HandleFunc("GET /v1/calendar/events", s.admit(s.handleCalendarEvents))
	mux.HandleFunc("POST /v1/calendar/events", s.admit(s.handleCalendarCreate))
	mux.HandleFunc("PATCH /v1/calendar/events/{id}", s.admit(s.handleCalendarUpdate))
	mux.HandleFunc("POST /v1/email/reply", s.admit(s.handleReply))
	mux.HandleFunc("POST /v1/email/send", s.admit(s.handleSend))

	s.httpServer = &http.Server{Handler: s.rootHandler(mux)}
	return s
}

// Handler exposes the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening on the configured TCP address. Blocks until Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("listen", addr).Msg("API server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// rootHandler rejects unmatched requests before the mux can emit its own
// 404/405 pages, and converts panics into the uniform upstream envelope.
// Method mismatches fall under deny-by-default too.
func (s *Server) rootHandler(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				if err := s.audit.Log(audit.ActionRequestError, principalFrom(r.Context()), map[string]any{
					"path":  r.URL.Path,
					"code":  http.StatusBadGateway,
					"error": fmt.Sprint(rec),
				}); err != nil {
					s.logger.Error().Err(err).Msg("audit write failed")
				}
				writeError(w, http.StatusBadGateway, "upstream_failure")
			}
		}()

		if _, pattern := mux.Handler(r); pattern == "" {
			writeError(w, http.StatusNotFound, "deny-by-default")
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// admit wraps a handler with the admission pipeline: authenticate, charge
// the per-principal minute bucket, bind the principal into the context.
func (s *Server) admit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.auth.Authenticate(r)
		if !res.OK {
			if !s.auditEntry(w, audit.ActionAuthDeny, "unknown", map[string]any{
				"path":   r.URL.Path,
				"reason": res.Reason,
			}) {
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !s.limiter.Allow(res.Principal) {
			if !s.auditEntry(w, audit.ActionPolicyDeny, res.Principal, map[string]any{
				"path":   r.URL.Path,
				"reason": "rate_limited",
			}) {
				return
			}
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, res.Principal)
		next(w, r.WithContext(ctx))
	}
}

func principalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey).(string); ok {
		return p
	}
	return "unknown"
}

// auditEntry writes one audit record. On a write failure the request
// degrades to the upstream envelope: an action the trail cannot record
// must not complete.
func (s *Server) auditEntry(w http.ResponseWriter, action, principal string, fields map[string]any) bool {
	if err := s.audit.Log(action, principal, fields); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("audit write failed")
		writeError(w, http.StatusBadGateway, "upstream_failure")
		return false
	}
	return true
}

// upstreamFailure audits a provider or internal fault and answers with the
// uniform 502 envelope. Error detail stays in the local trail.
func (s *Server) upstreamFailure(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
	if alErr := s.audit.Log(audit.ActionRequestError, principalFrom(r.Context()), map[string]any{
		"path":  r.URL.Path,
		"code":  http.StatusBadGateway,
		"error": err.Error(),
	}); alErr != nil {
		s.logger.Error().Err(alErr).Msg("audit write failed")
	}
	writeError(w, http.StatusBadGateway, "upstream_failure")
}

// readJSON decodes a request body under the payload cap. An oversize
// declared length is rejected before reading; otherwise reading stops the
// moment the body exceeds the cap, before any parsing.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := s.cfg.Server.MaxPayloadBytes
	if r.ContentLength > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	if int64(len(body)) > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: reason})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{OK: true})
}
