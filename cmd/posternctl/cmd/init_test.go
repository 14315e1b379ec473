package cmd

import (
	"os"
	"strings"
	"testing"

	"github.com/postern-ai/postern/internal/config"
)

func runCtl(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()

	if err := runCtl(t, "init", "--data-dir", dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	layout := config.ResolveLayout(dir)
	info, err := os.Stat(layout.ConfigPath)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %04o, want 0600", perm)
	}

	cfg, err := config.Load(layout.ConfigPath)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("generated config does not validate: %v", err)
	}

	if len(cfg.Auth.APIKey) != 64 {
		t.Errorf("api key length = %d, want 64 hex chars", len(cfg.Auth.APIKey))
	}
	if cfg.Auth.APIKey == cfg.Auth.SigningKey {
		t.Error("api key and signing key must differ")
	}
	if !cfg.Outbound.ReplyOnlyDefault {
		t.Error("generated config must default to reply-only sending")
	}
	if cfg.CalendarWrite.Enabled {
		t.Error("generated config must default to calendar writes disabled")
	}
	if cfg.CalendarRead.AllowAttendeeEmails || cfg.CalendarRead.AllowLocation || cfg.CalendarRead.AllowMeetingUrls {
		t.Error("generated config must hide calendar details by default")
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	if err := runCtl(t, "init", "--data-dir", dir); err != nil {
		t.Fatalf("first init: %v", err)
	}

	err := runCtl(t, "init", "--data-dir", dir)
	if err == nil {
		t.Fatal("second init should refuse without --force")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v, want already-exists refusal", err)
	}

	if err := runCtl(t, "init", "--data-dir", dir, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}
