package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/postern-ai/postern/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		dataDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and an initial config",
		Long: `Creates the posternd data directory tree with owner-only permissions,
generates an API key and a token signing key, and writes a config file with
conservative defaults: email sending is reply-only, calendar writes are
disabled, and calendar reads hide attendees, locations, and meeting links.

The generated API key is printed once; it is not recoverable from the daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := config.ResolveLayout(dataDir)

			if err := layout.EnsureDirs(); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}

			if _, err := os.Stat(layout.ConfigPath); err == nil && !force {
				return fmt.Errorf("config already exists: %s (use --force to overwrite)", layout.ConfigPath)
			}

			newAPIKey, err := randomHex(32)
			if err != nil {
				return fmt.Errorf("generate api key: %w", err)
			}
			signingKey, err := randomHex(32)
			if err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}

			data, err := json.MarshalIndent(defaultConfig(newAPIKey, signingKey), "", "  ")
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			if err := os.WriteFile(layout.ConfigPath, append(data, '\n'), 0600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Printf("Data directory: %s\n", layout.DataDir)
			fmt.Printf("Config written to: %s\n", layout.ConfigPath)
			fmt.Printf("API key (shown once, store it safely): %s\n", newAPIKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/postern)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// defaultConfig renders the initial config file. Keys mirror the loader's
// viper keys; values mirror its defaults, with the generated credentials
// filled in.
func defaultConfig(apiKey, signingKey string) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":              "127.0.0.1",
			"port":              8787,
			"maxPayloadBytes":   65536,
			"requestsPerMinute": 60,
		},
		"auth": map[string]any{
			"apiKey":          apiKey,
			"signingKey":      signingKey,
			"tokenTtlSeconds": 300,
		},
		"gmail": map[string]any{
			"account": "",
		},
		"calendar": map[string]any{
			"allowedCalendarIds": []string{"primary"},
		},
		"emailPolicy": map[string]any{
			"maxRecentDays":    7,
			"authHandlingMode": config.AuthModeBlock,
			"contextMode":      config.ContextLatestOnly,
		},
		"calendarReadPolicy": map[string]any{
			"defaultThisWeek":     true,
			"maxPastDays":         7,
			"maxFutureDays":       60,
			"allowAttendeeEmails": false,
			"allowLocation":       false,
			"allowMeetingUrls":    false,
		},
		"calendarWritePolicy": map[string]any{
			"enabled":            false,
			"allowedCalendarIds": []string{},
			"allowAttendees":     false,
			"sendUpdates":        config.SendUpdatesNone,
			"maxEventsPerHour":   4,
			"maxEventsPerDay":    20,
		},
		"outboundPolicy": map[string]any{
			"replyOnlyDefault":   true,
			"allowAllRecipients": false,
			"allowReplyToAnyone": false,
			"recipientAllowlist": []string{},
			"domainAllowlist":    []string{},
			"maxEmailsPerHour":   10,
			"maxEmailsPerDay":    40,
		},
		"provider": map[string]any{
			"mode":    config.ProviderModeCLI,
			"command": []string{"google-agent-cli"},
			"google": map[string]any{
				"clientId":     "",
				"clientSecret": "",
				"tokenFile":    "",
			},
		},
	}
}
