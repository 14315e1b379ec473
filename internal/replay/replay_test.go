package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), zerolog.Nop())
}

func TestValidJTI(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0b81a1a0-9d74-4f3b-8a6e-2f1c9d74a0b8", true},
		{"abcdef0123456789", true},
		{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", true},
		{"abcdef012345678", false},  // 15 chars
		{"ABCDEF0123456789", false}, // uppercase
		{"../../etc/passwd", false},
		{"abcdef0123456789.json", false},
		{"abcdef 123456789", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ValidJTI(tt.id); got != tt.want {
				t.Errorf("ValidJTI(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestInstall_SingleWinner(t *testing.T) {
	s := newTestStore(t)
	jti := "0b81a1a0-9d74-4f3b-8a6e-2f1c9d74a0b8"
	exp := time.Now().Add(5 * time.Minute)

	if err := s.Install(jti, exp); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if err := s.Install(jti, exp); err == nil {
		t.Fatal("second install must fail")
	}
}

func TestInstall_MarkerContent(t *testing.T) {
	s := newTestStore(t)
	jti := "abcdef0123456789"
	exp := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	if err := s.Install(jti, exp); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, jti+".json"))
	if err != nil {
		t.Fatal(err)
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("marker is not JSON: %v", err)
	}
	if m.Exp != exp.Unix() {
		t.Errorf("exp = %d, want %d", m.Exp, exp.Unix())
	}
}

func TestInstall_UnsafeJTI(t *testing.T) {
	s := newTestStore(t)

	for _, jti := range []string{"../../escape", "UPPER0123456789A", "short", ""} {
		if err := s.Install(jti, time.Now().Add(time.Minute)); err == nil {
			t.Errorf("Install(%q) should fail the safe-name check", jti)
		}
	}

	// Nothing may be created outside (or inside) the marker directory.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("marker directory not empty: %v", entries)
	}
}

func TestSweep_RemovesExpiredAndMalformed(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	live := "aaaaaaaaaaaaaaaa"
	expired := "bbbbbbbbbbbbbbbb"
	if err := s.Install(live, now.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.Install(expired, now.Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	malformed := filepath.Join(s.dir, "cccccccccccccccc.json")
	if err := os.WriteFile(malformed, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s.Sweep()

	if _, err := os.Stat(filepath.Join(s.dir, live+".json")); err != nil {
		t.Errorf("live marker removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, expired+".json")); !os.IsNotExist(err) {
		t.Error("expired marker survived sweep")
	}
	if _, err := os.Stat(malformed); !os.IsNotExist(err) {
		t.Error("malformed marker survived sweep")
	}
}

func TestSweep_RateLimited(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Sweep()

	// An expired marker installed after the first sweep must survive
	// sweeps within the same minute.
	expired := "dddddddddddddddd"
	if err := s.Install(expired, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	s.Sweep()
	if _, err := os.Stat(filepath.Join(s.dir, expired+".json")); err != nil {
		t.Fatalf("sweep ran again within the same minute: %v", err)
	}

	now = now.Add(61 * time.Second)
	s.Sweep()
	if _, err := os.Stat(filepath.Join(s.dir, expired+".json")); !os.IsNotExist(err) {
		t.Error("expired marker survived sweep after the rate window")
	}
}
