package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Env vars that redirect individual state paths, principally for tests.
const (
	EnvConfigPath       = "SECURE_WRAPPER_CONFIG"
	EnvAuditPath        = "SECURE_WRAPPER_AUDIT"
	EnvReplayDir        = "SECURE_WRAPPER_REPLAY_DIR"
	EnvSendCounters     = "SECURE_WRAPPER_RATE"
	EnvCalendarCounters = "SECURE_WRAPPER_CALENDAR_RATE"
)

// Layout maps the persisted state files under the data directory.
type Layout struct {
	DataDir              string
	ConfigPath           string
	AuditPath            string
	ReplayDir            string
	SendCountersPath     string
	CalendarCountersPath string
}

// DefaultDataDir returns ~/.local/share/postern.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "postern-data")
	}
	return filepath.Join(homeDir, ".local", "share", "postern")
}

// ResolveLayout computes every state path from the data directory, honoring
// the SECURE_WRAPPER_* env overrides.
func ResolveLayout(dataDir string) Layout {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	l := Layout{
		DataDir:              dataDir,
		ConfigPath:           filepath.Join(dataDir, "config", "wrapper-config.json"),
		AuditPath:            filepath.Join(dataDir, "logs", "audit.jsonl"),
		ReplayDir:            filepath.Join(dataDir, "logs", "token-replay"),
		SendCountersPath:     filepath.Join(dataDir, "logs", "send-counters.json"),
		CalendarCountersPath: filepath.Join(dataDir, "logs", "calendar-counters.json"),
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		l.ConfigPath = p
	}
	if p := os.Getenv(EnvAuditPath); p != "" {
		l.AuditPath = p
	}
	if p := os.Getenv(EnvReplayDir); p != "" {
		l.ReplayDir = p
	}
	if p := os.Getenv(EnvSendCounters); p != "" {
		l.SendCountersPath = p
	}
	if p := os.Getenv(EnvCalendarCounters); p != "" {
		l.CalendarCountersPath = p
	}
	return l
}

// EnsureDirs creates the directories backing the layout with owner-only
// permissions.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(l.ConfigPath),
		filepath.Dir(l.AuditPath),
		l.ReplayDir,
		filepath.Dir(l.SendCountersPath),
		filepath.Dir(l.CalendarCountersPath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
