// Package quota enforces rolling hour and day caps on side-effecting
// operations. Each counter is a single JSON file shared across processes;
// mutation happens only under an exclusive lock file.
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Deny reasons returned in Verdict.
const (
	ReasonHourLimit = "hour_limit_exceeded"
	ReasonDayLimit  = "day_limit_exceeded"
)

const (
	lockRetryDelay = 25 * time.Millisecond
	lockRetries    = 40
)

// Verdict is the outcome of a consume attempt.
type Verdict struct {
	OK     bool
	Reason string
}

// record is the on-disk counter shape. Keys are UTC.
type record struct {
	HourKey   string `json:"hourKey"`
	DayKey    string `json:"dayKey"`
	HourCount int    `json:"hourCount"`
	DayCount  int    `json:"dayCount"`
}

// Counter is a rolling hour+day quota backed by one file. The in-process
// mutex only reduces lock-file contention between handlers; the file lock
// remains the source of truth across processes.
type Counter struct {
	mu      sync.Mutex
	path    string
	hourMax int
	dayMax  int
	now     func() time.Time
}

// New returns a Counter persisting at path with the given caps.
func New(path string, hourMax, dayMax int) *Counter {
	return &Counter{path: path, hourMax: hourMax, dayMax: dayMax, now: time.Now}
}

// Consume takes one unit from both windows. Either the unit is consumed
// and the guarded side-effect may proceed, or nothing was persisted.
// Counts never roll back; a failed side-effect still costs its unit.
func (c *Counter) Consume() (Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	release, err := c.acquireLock()
	if err != nil {
		return Verdict{}, err
	}
	defer release()

	rec, err := c.load()
	if err != nil {
		return Verdict{}, err
	}

	now := c.now().UTC()
	hourKey := now.Format("2006-01-02-15")
	dayKey := now.Format("2006-01-02")
	if rec.HourKey != hourKey {
		rec.HourKey = hourKey
		rec.HourCount = 0
	}
	if rec.DayKey != dayKey {
		rec.DayKey = dayKey
		rec.DayCount = 0
	}

	if rec.HourCount >= c.hourMax {
		return Verdict{Reason: ReasonHourLimit}, nil
	}
	if rec.DayCount >= c.dayMax {
		return Verdict{Reason: ReasonDayLimit}, nil
	}

	rec.HourCount++
	rec.DayCount++
	if err := c.store(rec); err != nil {
		return Verdict{}, err
	}
	return Verdict{OK: true}, nil
}

// acquireLock exclusive-creates the sibling lock file, spinning briefly on
// contention. The returned release removes the lock and must run on every
// exit path.
func (c *Counter) acquireLock() (release func(), err error) {
	lockPath := c.path + ".lock"
	for i := 0; i < lockRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create quota lock %s: %w", lockPath, err)
		}
		time.Sleep(lockRetryDelay)
	}
	return nil, fmt.Errorf("quota lock %s: not acquired after %v", lockPath, lockRetries*lockRetryDelay)
}

// load reads the counter record, returning a fresh one when the file does
// not exist yet. A file that exists but does not parse is an error, not a
// reset: a corrupted counter must not reopen the quota.
func (c *Counter) load() (record, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return record{}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("read quota counter %s: %w", c.path, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("parse quota counter %s: %w", c.path, err)
	}
	return rec, nil
}

func (c *Counter) store(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal quota counter: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("write quota counter %s: %w", c.path, err)
	}
	return nil
}
