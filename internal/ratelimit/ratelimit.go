// Package ratelimit throttles admitted requests with an in-memory minute
// bucket per principal.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

type bucket struct {
	key   string
	count int
}

// Limiter caps requests per principal per UTC minute. Counts live in
// memory only; a restart opens fresh buckets.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	buckets map[string]*bucket
	now     func() time.Time
}

// New returns a Limiter admitting limit requests per principal per minute.
func New(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether principal may proceed, counting the admission.
// The check and increment happen under one lock so a burst can never slip
// past the cap.
func (l *Limiter) Allow(principal string) bool {
	now := l.now().UTC()
	key := fmt.Sprintf("%d-%d-%d-%d-%d", now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[principal]
	if !ok || b.key != key {
		b = &bucket{key: key}
		l.buckets[principal] = b
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}
