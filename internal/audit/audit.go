// Package audit appends JSON-lines records of every policy decision and
// provider side-effect. The trail is append-only; nothing in the wrapper
// reads it back.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Audit actions.
const (
	ActionAuthDeny       = "auth_deny"
	ActionPolicyDeny     = "policy_deny"
	ActionTokenIssued    = "token_issued"
	ActionEmailUnread    = "email_unread"
	ActionCalendarEvents = "calendar_events"
	ActionCalendarCreate = "calendar_create"
	ActionCalendarUpdate = "calendar_update"
	ActionEmailReply     = "email_reply"
	ActionEmailSend      = "email_send"
	ActionRequestError   = "request_error"
)

// Logger appends one JSON object per line to the audit file. Every record
// leads with ts, then action and principal, then any action-specific
// fields in sorted key order. Write failures are returned to the caller;
// the trail must not silently lose records.
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New returns a Logger appending to path. The parent directory must
// already exist.
func New(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

// Log appends one record.
func (l *Logger) Log(action, principal string, fields map[string]any) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "ts", l.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, "action", action); err != nil {
		return err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, "principal", principal); err != nil {
		return err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		if err := writeField(&buf, k, fields[k]); err != nil {
			return err
		}
	}
	buf.WriteString("}\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append audit record: %w", err)
	}
	return f.Close()
}

func writeField(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal audit key %s: %w", key, err)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal audit field %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
