package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCounter(t *testing.T, hourMax, dayMax int) *Counter {
	t.Helper()
	c := New(filepath.Join(t.TempDir(), "counters.json"), hourMax, dayMax)
	c.now = func() time.Time {
		return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestConsume_FirstUse(t *testing.T) {
	c := newTestCounter(t, 4, 20)

	v, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !v.OK {
		t.Fatalf("first consume denied: %+v", v)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		t.Fatal(err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("counter file is not JSON: %v", err)
	}
	if rec.HourKey != "2025-01-15-12" || rec.DayKey != "2025-01-15" {
		t.Errorf("keys = %q/%q", rec.HourKey, rec.DayKey)
	}
	if rec.HourCount != 1 || rec.DayCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", rec.HourCount, rec.DayCount)
	}
}

func TestConsume_HourLimit(t *testing.T) {
	c := newTestCounter(t, 2, 20)

	for i := 0; i < 2; i++ {
		v, err := c.Consume()
		if err != nil || !v.OK {
			t.Fatalf("consume %d: %+v, %v", i, v, err)
		}
	}

	v, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if v.OK || v.Reason != ReasonHourLimit {
		t.Errorf("verdict = %+v, want hour_limit_exceeded", v)
	}
}

func TestConsume_DayLimit(t *testing.T) {
	c := newTestCounter(t, 100, 3)

	for i := 0; i < 3; i++ {
		if v, err := c.Consume(); err != nil || !v.OK {
			t.Fatalf("consume %d: %+v, %v", i, v, err)
		}
	}

	v, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if v.OK || v.Reason != ReasonDayLimit {
		t.Errorf("verdict = %+v, want day_limit_exceeded", v)
	}
}

func TestConsume_HourRollover(t *testing.T) {
	c := newTestCounter(t, 2, 20)

	for i := 0; i < 2; i++ {
		if v, _ := c.Consume(); !v.OK {
			t.Fatalf("setup consume %d denied", i)
		}
	}
	if v, _ := c.Consume(); v.OK {
		t.Fatal("expected hour limit before rollover")
	}

	// Next hour: hour window reopens, day window keeps counting.
	c.now = func() time.Time {
		return time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)
	}
	v, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume after rollover: %v", err)
	}
	if !v.OK {
		t.Fatalf("verdict after hour rollover = %+v", v)
	}

	data, _ := os.ReadFile(c.path)
	var rec record
	json.Unmarshal(data, &rec)
	if rec.HourCount != 1 {
		t.Errorf("hourCount = %d, want 1 after rollover", rec.HourCount)
	}
	if rec.DayCount != 3 {
		t.Errorf("dayCount = %d, want 3 across hours", rec.DayCount)
	}
}

func TestConsume_DayRollover(t *testing.T) {
	c := newTestCounter(t, 100, 2)

	for i := 0; i < 2; i++ {
		if v, _ := c.Consume(); !v.OK {
			t.Fatalf("setup consume %d denied", i)
		}
	}
	if v, _ := c.Consume(); v.OK {
		t.Fatal("expected day limit before rollover")
	}

	c.now = func() time.Time {
		return time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	}
	v, err := c.Consume()
	if err != nil {
		t.Fatalf("Consume after rollover: %v", err)
	}
	if !v.OK {
		t.Fatalf("verdict after day rollover = %+v", v)
	}
}

func TestConsume_SharedFile(t *testing.T) {
	// Two Counter instances over the same path model two processes.
	path := filepath.Join(t.TempDir(), "counters.json")
	fixed := func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }

	a := New(path, 2, 20)
	a.now = fixed
	b := New(path, 2, 20)
	b.now = fixed

	if v, _ := a.Consume(); !v.OK {
		t.Fatal("first consume denied")
	}
	if v, _ := b.Consume(); !v.OK {
		t.Fatal("second consume via other instance denied")
	}
	v, err := a.Consume()
	if err != nil {
		t.Fatal(err)
	}
	if v.OK || v.Reason != ReasonHourLimit {
		t.Errorf("verdict = %+v, want hour limit across instances", v)
	}
}

func TestConsume_CorruptCounterFileFailsClosed(t *testing.T) {
	c := newTestCounter(t, 4, 20)
	if err := os.WriteFile(c.path, []byte("{corrupt"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Consume(); err == nil {
		t.Fatal("expected error on corrupt counter file")
	}
}

func TestConsume_StaleLockTimesOut(t *testing.T) {
	c := newTestCounter(t, 4, 20)
	if err := os.WriteFile(c.path+".lock", nil, 0600); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := c.Consume()
	if err == nil {
		t.Fatal("expected lock timeout error")
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("gave up after %v, expected a bounded spin near 1s", elapsed)
	}
}

func TestConsume_ReleasesLock(t *testing.T) {
	c := newTestCounter(t, 4, 20)
	if _, err := c.Consume(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind after consume")
	}

	// Denied verdicts release too.
	c2 := newTestCounter(t, 0, 0)
	if v, err := c2.Consume(); err != nil || v.OK {
		t.Fatalf("expected deny: %+v, %v", v, err)
	}
	if _, err := os.Stat(c2.path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind after deny")
	}
}

func TestConsume_ConcurrentExactlyCapWins(t *testing.T) {
	const n = 10
	const hourMax = 3

	c := newTestCounter(t, hourMax, 100)

	var wg sync.WaitGroup
	oks := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Consume()
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			oks <- v.OK
		}()
	}
	wg.Wait()
	close(oks)

	granted := 0
	for ok := range oks {
		if ok {
			granted++
		}
	}
	if granted != hourMax {
		t.Errorf("granted = %d, want exactly %d", granted, hourMax)
	}
}
