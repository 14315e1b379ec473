// Package replay persists one-time-use markers for bearer tokens. A
// marker file named after the token's jti proves the token has been
// consumed; exclusive-create makes the first caller the only winner,
// across handlers, restarts, and concurrent processes sharing the
// directory.
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// jtiPattern is the safe-name rule for marker files. It admits only
// hyphenated hex identifiers, so no jti can escape the marker directory
// or name a special file.
var jtiPattern = regexp.MustCompile(`^[a-f0-9-]{16,64}$`)

// ValidJTI reports whether id is safe to use as a marker filename.
func ValidJTI(id string) bool {
	return jtiPattern.MatchString(id)
}

type marker struct {
	Exp int64 `json:"exp"`
}

// Store is the persistent one-time-use token set.
type Store struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

// New returns a Store over dir, which must already exist.
func New(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "replay").Logger(),
		now:    time.Now,
	}
}

// Install claims jti until exp. An unsafe jti, an existing marker, or any
// filesystem failure refuses the claim; callers treat every refusal as a
// replay.
func (s *Store) Install(jti string, exp time.Time) error {
	if !ValidJTI(jti) {
		return fmt.Errorf("jti %q fails safe-name check", jti)
	}
	path := filepath.Join(s.dir, jti+".json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("install replay marker: %w", err)
	}
	data, err := json.Marshal(marker{Exp: exp.Unix()})
	if err != nil {
		f.Close()
		return fmt.Errorf("marshal replay marker: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write replay marker: %w", err)
	}
	return f.Close()
}

// Sweep deletes expired and malformed markers. It runs at most once per
// minute per process; callers may invoke it freely on hot paths.
func (s *Store) Sweep() {
	s.mu.Lock()
	if s.now().Sub(s.lastSweep) < time.Minute {
		s.mu.Unlock()
		return
	}
	s.lastSweep = s.now()
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("replay sweep: cannot list marker directory")
		return
	}

	now := s.now().Unix()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m marker
		if err := json.Unmarshal(data, &m); err == nil && m.Exp > now {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("replay markers swept")
	}
}
