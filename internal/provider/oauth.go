package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var oauthScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/calendar",
}

// OAuthConfig returns the OAuth2 config for the Google APIs this
// provider touches. Token issuance happens out of band; only refresh
// runs here.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       oauthScopes,
	}
}

// PersistentTokenSource wraps an oauth2.TokenSource and writes refreshed
// tokens back to disk so a restart does not lose the refresh state.
type PersistentTokenSource struct {
	mu        sync.Mutex
	source    oauth2.TokenSource
	tokenPath string
	lastToken string
	logger    zerolog.Logger
}

func NewPersistentTokenSource(cfg *oauth2.Config, tokenPath string, logger zerolog.Logger) (*PersistentTokenSource, error) {
	token, err := LoadTokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}
	return &PersistentTokenSource{
		source:    cfg.TokenSource(context.Background(), token),
		tokenPath: tokenPath,
		lastToken: token.AccessToken,
		logger:    logger.With().Str("component", "oauth").Logger(),
	}, nil
}

func (p *PersistentTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.source.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.lastToken {
		if err := SaveTokenToFile(p.tokenPath, token); err != nil {
			// A save failure must not block the call that triggered
			// the refresh.
			p.logger.Warn().Err(err).Msg("Failed to persist refreshed token")
		} else {
			p.lastToken = token.AccessToken
		}
	}
	return token, nil
}

func LoadTokenFromFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &token, nil
}

func SaveTokenToFile(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
