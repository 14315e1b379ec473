package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path)
	l.now = func() time.Time {
		return time.Date(2025, 1, 15, 12, 30, 45, 0, time.UTC)
	}
	return l, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLog_RecordShape(t *testing.T) {
	l, path := newTestLogger(t)

	err := l.Log(ActionEmailUnread, "api-key", map[string]any{
		"days":         2,
		"contextMode":  "latest_only",
		"count":        1,
		"blockedCount": 0,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	if !strings.HasPrefix(lines[0], `{"ts":`) {
		t.Errorf("record must lead with ts: %s", lines[0])
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if rec["ts"] != "2025-01-15T12:30:45Z" {
		t.Errorf("ts = %v", rec["ts"])
	}
	if rec["action"] != ActionEmailUnread {
		t.Errorf("action = %v", rec["action"])
	}
	if rec["principal"] != "api-key" {
		t.Errorf("principal = %v", rec["principal"])
	}
	if rec["days"] != float64(2) {
		t.Errorf("days = %v", rec["days"])
	}
	if rec["blockedCount"] != float64(0) {
		t.Errorf("blockedCount = %v, zero counts must still appear", rec["blockedCount"])
	}
}

func TestLog_Appends(t *testing.T) {
	l, path := newTestLogger(t)

	if err := l.Log(ActionAuthDeny, "unknown", map[string]any{"path": "/v1/email/unread", "reason": "missing_credentials"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(ActionTokenIssued, "api-key", map[string]any{"sub": "agent-1"}); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestLog_NilFields(t *testing.T) {
	l, path := newTestLogger(t)

	if err := l.Log(ActionPolicyDeny, "agent-1", nil); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, path)
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if len(rec) != 3 {
		t.Errorf("expected only ts/action/principal, got %v", rec)
	}
}

func TestLog_SliceAndBoolFields(t *testing.T) {
	l, path := newTestLogger(t)

	err := l.Log(ActionCalendarEvents, "agent-1", map[string]any{
		"calendars":     []string{"primary", "shared"},
		"allowLocation": false,
		"count":         3,
	})
	if err != nil {
		t.Fatal(err)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &rec); err != nil {
		t.Fatal(err)
	}
	cals, ok := rec["calendars"].([]any)
	if !ok || len(cals) != 2 {
		t.Errorf("calendars = %v", rec["calendars"])
	}
	if rec["allowLocation"] != false {
		t.Errorf("allowLocation = %v", rec["allowLocation"])
	}
}

func TestLog_WriteErrorSurfaces(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "missing", "audit.jsonl"))
	if err := l.Log(ActionAuthDeny, "unknown", nil); err == nil {
		t.Fatal("expected error when audit directory does not exist")
	}
}

func TestLog_ConcurrentWritesStayLineAtomic(t *testing.T) {
	l, path := newTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Log(ActionEmailSend, "agent-1", map[string]any{"to": "ok@example.com", "id": "msg"}); err != nil {
				t.Errorf("Log: %v", err)
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, path)
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("line %d corrupted under concurrency: %v", i, err)
		}
	}
}
