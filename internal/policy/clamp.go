// Package policy normalizes caller-supplied parameters to
// configuration-bound values and enforces the outbound recipient
// allowlist.
package policy

import (
	"strconv"
	"strings"
	"time"

	"github.com/postern-ai/postern/internal/config"
)

// ClampDays parses a requested day count and bounds it to [1, max].
// Anything unparseable collapses to the configured maximum.
func ClampDays(raw string, max int) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		days = max
	}
	if days < 1 {
		days = 1
	}
	if days > max {
		days = max
	}
	return days
}

// Range is a clamped event window together with the policy bounds it was
// clamped against.
type Range struct {
	Start time.Time
	End   time.Time
	Min   time.Time
	Max   time.Time
}

// ClampCalendarRange bounds a requested event window to the read policy.
// If either end of the request is missing or unparseable, the window falls
// back to the current UTC week (Monday through Sunday) when
// defaultThisWeek is set, otherwise to the full policy bounds.
func ClampCalendarRange(startRaw, endRaw string, now time.Time, pol config.CalendarReadPolicy) Range {
	now = now.UTC()
	min := startOfDay(now.AddDate(0, 0, -pol.MaxPastDays))
	max := endOfDay(now.AddDate(0, 0, pol.MaxFutureDays))

	start, errStart := time.Parse(time.RFC3339, startRaw)
	end, errEnd := time.Parse(time.RFC3339, endRaw)
	if startRaw == "" || endRaw == "" || errStart != nil || errEnd != nil {
		if pol.DefaultThisWeek {
			start, end = weekBounds(now)
		} else {
			start, end = min, max
		}
	} else {
		start = start.UTC()
		end = end.UTC()
	}

	if start.Before(min) {
		start = min
	}
	if end.After(max) {
		end = max
	}
	if end.Before(start) {
		end = start
	}
	return Range{Start: start, End: end, Min: min, Max: max}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// weekBounds returns Monday 00:00:00 through Sunday 23:59:59 UTC of the
// week containing now.
func weekBounds(now time.Time) (time.Time, time.Time) {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := startOfDay(now).AddDate(0, 0, 1-weekday)
	return monday, endOfDay(monday.AddDate(0, 0, 6))
}

// ParseCalendarIDs splits a comma-separated calendar list, trimming
// whitespace, dropping empties, and de-duplicating while preserving
// order. Empty input falls back to the configured list.
func ParseCalendarIDs(raw string, configured []string) []string {
	if strings.TrimSpace(raw) == "" {
		return configured
	}
	seen := make(map[string]bool)
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return configured
	}
	return ids
}

// WriteCalendarAllowed reports whether events may be written to the given
// calendar. A non-empty write allowlist takes precedence over the read
// list.
func WriteCalendarAllowed(id string, writeList, readList []string) bool {
	list := readList
	if len(writeList) > 0 {
		list = writeList
	}
	for _, allowed := range list {
		if id == allowed {
			return true
		}
	}
	return false
}
