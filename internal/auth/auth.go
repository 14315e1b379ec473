// Package auth authenticates wrapper callers: static API keys compared in
// constant time, and single-use HMAC bearer tokens with signing-key
// rotation and replay defense.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/postern-ai/postern/internal/config"
	"github.com/postern-ai/postern/internal/replay"
)

// Audience is the fixed aud claim carried and required by every wrapper
// token.
const Audience = "postern"

// PrincipalAPIKey is the principal recorded for API-key callers.
const PrincipalAPIKey = "api-key"

// Deny reasons.
const (
	ReasonMissingCredentials = "missing_credentials"
	ReasonInvalidAPIKey      = "invalid_api_key"
	ReasonInvalidToken       = "invalid_token"
	ReasonReplayDetected     = "replay_detected"
)

// maxIssuedAtSkew bounds how far in the future a token's iat may sit.
const maxIssuedAtSkew = 10 * time.Second

// Result is the outcome of an authentication attempt.
type Result struct {
	OK        bool
	Principal string
	Reason    string
}

// Authenticator checks caller credentials against the configured API key
// and signing keys.
type Authenticator struct {
	cfg          config.AuthConfig
	apiKeyDigest [sha256.Size]byte
	replays      *replay.Store
	now          func() time.Time
}

// New returns an Authenticator backed by the given replay store.
func New(cfg config.AuthConfig, replays *replay.Store) *Authenticator {
	return &Authenticator{
		cfg:          cfg,
		apiKeyDigest: sha256.Sum256([]byte(cfg.APIKey)),
		replays:      replays,
		now:          time.Now,
	}
}

// Authenticate inspects request headers and returns the caller's
// principal or a deny reason. A present-but-wrong API key still allows a
// bearer token on the same request to succeed.
func (a *Authenticator) Authenticate(r *http.Request) Result {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		apiKey = r.Header.Get("x-agent-key")
	}
	if apiKey != "" && a.validAPIKey(apiKey) {
		return Result{OK: true, Principal: PrincipalAPIKey}
	}

	if authz := r.Header.Get("authorization"); strings.HasPrefix(authz, "Bearer ") {
		return a.verifyToken(strings.TrimPrefix(authz, "Bearer "))
	}

	if apiKey != "" {
		return Result{Reason: ReasonInvalidAPIKey}
	}
	return Result{Reason: ReasonMissingCredentials}
}

// AuthenticateAPIKey accepts only the static API key. The token-minting
// route uses it so a bearer can never refresh itself.
func (a *Authenticator) AuthenticateAPIKey(r *http.Request) Result {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		apiKey = r.Header.Get("x-agent-key")
	}
	if apiKey == "" {
		return Result{Reason: ReasonMissingCredentials}
	}
	if !a.validAPIKey(apiKey) {
		return Result{Reason: ReasonInvalidAPIKey}
	}
	return Result{OK: true, Principal: PrincipalAPIKey}
}

// validAPIKey compares against the configured key. Hashing both sides
// first keeps the comparison constant-time for candidates of any length.
func (a *Authenticator) validAPIKey(candidate string) bool {
	digest := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(digest[:], a.apiKeyDigest[:]) == 1
}

// verifyToken validates a bearer under the current or previous signing
// key, then claims its jti. The verifier is always HMAC-SHA256; the
// token's own alg header is never trusted to pick anything else.
func (a *Authenticator) verifyToken(raw string) Result {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}

	var claims *jwt.RegisteredClaims
	for _, key := range []string{a.cfg.SigningKey, a.cfg.PreviousSigningKey} {
		if key == "" {
			continue
		}
		parsed := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, parsed, func(*jwt.Token) (any, error) {
			return []byte(key), nil
		}, opts...)
		if err == nil {
			claims = parsed
			break
		}
	}
	if claims == nil {
		return Result{Reason: ReasonInvalidToken}
	}

	if claims.Subject == "" {
		return Result{Reason: ReasonInvalidToken}
	}
	if claims.IssuedAt == nil || claims.IssuedAt.After(a.now().Add(maxIssuedAtSkew)) {
		return Result{Reason: ReasonInvalidToken}
	}
	if !replay.ValidJTI(claims.ID) {
		return Result{Reason: ReasonInvalidToken}
	}

	if err := a.replays.Install(claims.ID, claims.ExpiresAt.Time); err != nil {
		return Result{Reason: ReasonReplayDetected}
	}
	a.replays.Sweep()

	return Result{OK: true, Principal: claims.Subject}
}

// IssueToken mints a single-use bearer for sub, signed with the current
// key. Returns the compact token and its TTL in seconds.
func (a *Authenticator) IssueToken(sub string) (string, int, error) {
	if sub == "" {
		return "", 0, fmt.Errorf("token subject must not be empty")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(a.cfg.TokenTTLSeconds) * time.Second)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SigningKey))
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, a.cfg.TokenTTLSeconds, nil
}
