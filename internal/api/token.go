package api

import (
	"net/http"

	"github.com/postern-ai/postern/internal/audit"
	"github.com/postern-ai/postern/internal/auth"
	"github.com/postern-ai/postern/pkg/protocol"
)

// handleToken mints a short-lived bearer for the given subject. Only the
// static API key is accepted here; a bearer cannot refresh itself. The
// route sits outside the admission pipeline, so no minute-bucket charge.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	res := s.auth.AuthenticateAPIKey(r)
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

	var req protocol.TokenRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Sub == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	token, ttl, err := s.auth.IssueToken(req.Sub)
	if err != nil {
		s.upstreamFailure(w, r, err)
		return
	}

	if !s.auditEntry(w, audit.ActionTokenIssued, auth.PrincipalAPIKey, map[string]any{
		"sub": req.Sub,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.TokenResponse{Token: token, TTLSeconds: ttl})
}
