// Package config loads and validates the wrapper policy configuration.
//
// The canonical file is config/wrapper-config.json under the data directory.
// All policy is fixed at startup; nothing reloads at runtime.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/postern-ai/postern/internal/secrets"
)

// Enumerated policy values.
const (
	AuthModeBlock = "block"
	AuthModeWarn  = "warn"

	ContextFullThread = "full_thread"
	ContextLatestOnly = "latest_only"

	SendUpdatesNone         = "none"
	SendUpdatesAll          = "all"
	SendUpdatesExternalOnly = "externalOnly"

	ProviderModeCLI    = "cli"
	ProviderModeGoogle = "google"
)

// Config is the complete wrapper configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Gmail         GmailConfig         `mapstructure:"gmail"`
	Calendar      CalendarConfig      `mapstructure:"calendar"`
	EmailPolicy   EmailPolicy         `mapstructure:"emailPolicy"`
	CalendarRead  CalendarReadPolicy  `mapstructure:"calendarReadPolicy"`
	CalendarWrite CalendarWritePolicy `mapstructure:"calendarWritePolicy"`
	Outbound      OutboundPolicy      `mapstructure:"outboundPolicy"`
	Provider      ProviderConfig      `mapstructure:"provider"`
}

// ServerConfig holds the HTTP bind and admission limits.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	MaxPayloadBytes   int64  `mapstructure:"maxPayloadBytes"`
	RequestsPerMinute int    `mapstructure:"requestsPerMinute"`
}

// AuthConfig holds the caller credentials and token parameters.
type AuthConfig struct {
	APIKey             string `mapstructure:"apiKey"`             // #nosec G117 -- config deserialization, not hardcoded
	SigningKey         string `mapstructure:"signingKey"`         // #nosec G117
	PreviousSigningKey string `mapstructure:"previousSigningKey"` // #nosec G117
	TokenTTLSeconds    int    `mapstructure:"tokenTtlSeconds"`
}

// GmailConfig identifies the provider mail account.
type GmailConfig struct {
	Account string `mapstructure:"account"`
}

// CalendarConfig lists the calendars readable through the proxy.
type CalendarConfig struct {
	AllowedCalendarIDs []string `mapstructure:"allowedCalendarIds"`
}

// EmailPolicy governs the unread-email read surface.
type EmailPolicy struct {
	MaxRecentDays    int    `mapstructure:"maxRecentDays"`
	AuthHandlingMode string `mapstructure:"authHandlingMode"`
	ContextMode      string `mapstructure:"contextMode"`
}

// CalendarReadPolicy governs event listing and field exposure.
type CalendarReadPolicy struct {
	DefaultThisWeek     bool `mapstructure:"defaultThisWeek"`
	MaxPastDays         int  `mapstructure:"maxPastDays"`
	MaxFutureDays       int  `mapstructure:"maxFutureDays"`
	AllowAttendeeEmails bool `mapstructure:"allowAttendeeEmails"`
	AllowLocation       bool `mapstructure:"allowLocation"`
	AllowMeetingUrls    bool `mapstructure:"allowMeetingUrls"`
}

// CalendarWritePolicy governs event creation and updates.
type CalendarWritePolicy struct {
	Enabled            bool     `mapstructure:"enabled"`
	AllowedCalendarIDs []string `mapstructure:"allowedCalendarIds"`
	AllowAttendees     bool     `mapstructure:"allowAttendees"`
	SendUpdates        string   `mapstructure:"sendUpdates"`
	MaxEventsPerHour   int      `mapstructure:"maxEventsPerHour"`
	MaxEventsPerDay    int      `mapstructure:"maxEventsPerDay"`
}

// OutboundPolicy governs email sending.
type OutboundPolicy struct {
	ReplyOnlyDefault   bool     `mapstructure:"replyOnlyDefault"`
	AllowAllRecipients bool     `mapstructure:"allowAllRecipients"`
	AllowReplyToAnyone bool     `mapstructure:"allowReplyToAnyone"`
	RecipientAllowlist []string `mapstructure:"recipientAllowlist"`
	DomainAllowlist    []string `mapstructure:"domainAllowlist"`
	MaxEmailsPerHour   int      `mapstructure:"maxEmailsPerHour"`
	MaxEmailsPerDay    int      `mapstructure:"maxEmailsPerDay"`
}

// ProviderConfig selects and parameterizes the upstream adapter.
type ProviderConfig struct {
	Mode    string         `mapstructure:"mode"`
	Command []string       `mapstructure:"command"`
	Google  GoogleProvider `mapstructure:"google"`
}

// GoogleProvider holds OAuth client credentials and the persisted token path
// for the in-process provider.
type GoogleProvider struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"` // #nosec G117 -- config deserialization, not hardcoded
	TokenFile    string `mapstructure:"tokenFile"`
}

// Load reads the wrapper configuration from path, applying defaults, env
// binds, and ENC[...] decryption. A missing file is tolerated (env-only
// setups); Validate catches incomplete results.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.maxPayloadBytes", 65536)
	v.SetDefault("server.requestsPerMinute", 60)
	v.SetDefault("auth.tokenTtlSeconds", 300)
	v.SetDefault("calendar.allowedCalendarIds", []string{"primary"})
	v.SetDefault("emailPolicy.maxRecentDays", 7)
	v.SetDefault("emailPolicy.authHandlingMode", AuthModeBlock)
	v.SetDefault("emailPolicy.contextMode", ContextLatestOnly)
	v.SetDefault("calendarReadPolicy.defaultThisWeek", true)
	v.SetDefault("calendarReadPolicy.maxPastDays", 7)
	v.SetDefault("calendarReadPolicy.maxFutureDays", 60)
	v.SetDefault("calendarWritePolicy.enabled", false)
	v.SetDefault("calendarWritePolicy.sendUpdates", SendUpdatesNone)
	v.SetDefault("calendarWritePolicy.maxEventsPerHour", 4)
	v.SetDefault("calendarWritePolicy.maxEventsPerDay", 20)
	v.SetDefault("outboundPolicy.replyOnlyDefault", true)
	v.SetDefault("outboundPolicy.maxEmailsPerHour", 10)
	v.SetDefault("outboundPolicy.maxEmailsPerDay", 40)
	v.SetDefault("provider.mode", ProviderModeCLI)
	v.SetDefault("provider.command", []string{"google-agent-cli"})

	v.SetConfigType("json")
	v.SetConfigFile(path)

	v.BindEnv("auth.apiKey", "POSTERN_API_KEY")
	v.BindEnv("auth.signingKey", "POSTERN_SIGNING_KEY")
	v.BindEnv("auth.previousSigningKey", "POSTERN_PREVIOUS_SIGNING_KEY")
	v.BindEnv("provider.google.clientSecret", "POSTERN_GOOGLE_CLIENT_SECRET")

	if info, err := os.Stat(path); err == nil {
		if info.Mode().Perm()&0o077 != 0 {
			return Config{}, fmt.Errorf("config file %s is group/world accessible (mode %04o); chmod it to 0600", path, info.Mode().Perm())
		}
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	// Decrypt any ENC[...] values in config.
	identities, err := secrets.ResolveIdentity(v)
	if err != nil {
		return Config{}, fmt.Errorf("resolve encryption identity: %w", err)
	}
	if identities != nil {
		if err := secrets.DecryptViperConfig(v, identities); err != nil {
			return Config{}, fmt.Errorf("decrypt config: %w", err)
		}
	} else if secrets.HasEncryptedValues(v) {
		return Config{}, fmt.Errorf("config contains encrypted values but no age identity is configured; set POSTERN_AGE_KEY, POSTERN_AGE_KEY_FILE, or secrets.identity")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can run the daemon. Startup must
// fail fast on a missing API key or signing key.
func Validate(cfg Config) error {
	if cfg.Auth.APIKey == "" {
		return fmt.Errorf("auth.apiKey is required (set via config file or POSTERN_API_KEY env var)")
	}
	if cfg.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signingKey is required (set via config file or POSTERN_SIGNING_KEY env var)")
	}
	if cfg.Auth.TokenTTLSeconds <= 0 {
		return fmt.Errorf("auth.tokenTtlSeconds must be positive")
	}
	if cfg.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("server.maxPayloadBytes must be positive")
	}
	if cfg.Server.RequestsPerMinute <= 0 {
		return fmt.Errorf("server.requestsPerMinute must be positive")
	}
	if cfg.EmailPolicy.MaxRecentDays < 1 {
		return fmt.Errorf("emailPolicy.maxRecentDays must be at least 1")
	}
	switch cfg.EmailPolicy.AuthHandlingMode {
	case AuthModeBlock, AuthModeWarn:
	default:
		return fmt.Errorf("emailPolicy.authHandlingMode must be %q or %q", AuthModeBlock, AuthModeWarn)
	}
	switch cfg.EmailPolicy.ContextMode {
	case ContextFullThread, ContextLatestOnly:
	default:
		return fmt.Errorf("emailPolicy.contextMode must be %q or %q", ContextFullThread, ContextLatestOnly)
	}
	if cfg.CalendarRead.MaxPastDays < 0 {
		return fmt.Errorf("calendarReadPolicy.maxPastDays must not be negative")
	}
	if cfg.CalendarRead.MaxFutureDays < 0 {
		return fmt.Errorf("calendarReadPolicy.maxFutureDays must not be negative")
	}
	switch cfg.CalendarWrite.SendUpdates {
	case SendUpdatesNone, SendUpdatesAll, SendUpdatesExternalOnly:
	default:
		return fmt.Errorf("calendarWritePolicy.sendUpdates must be one of %q, %q, %q",
			SendUpdatesNone, SendUpdatesAll, SendUpdatesExternalOnly)
	}
	switch cfg.Provider.Mode {
	case ProviderModeCLI:
		if len(cfg.Provider.Command) == 0 {
			return fmt.Errorf("provider.command is required when provider.mode is %q", ProviderModeCLI)
		}
	case ProviderModeGoogle:
		if cfg.Provider.Google.ClientID == "" || cfg.Provider.Google.ClientSecret == "" || cfg.Provider.Google.TokenFile == "" {
			return fmt.Errorf("provider.google.clientId, clientSecret, and tokenFile are required when provider.mode is %q", ProviderModeGoogle)
		}
	default:
		return fmt.Errorf("provider.mode must be %q or %q", ProviderModeCLI, ProviderModeGoogle)
	}
	return nil
}
