// Package traffic counts data-request outcomes in per-second buckets so
// /health can report an error rate over a recent window.
package traffic

import (
	"sync"
	"time"
)

// horizon is the longest window the tracker can answer; older buckets are reused.
const horizon = 300

var defaultTracker = NewTracker()

// RecordSuccess records a data request that the store answered.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a data request that failed on the store side (error, timeout, open breaker).
func RecordError() {
	defaultTracker.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// RequestCount returns the number of outcomes within the window.
func RequestCount(window time.Duration) int {
	_, total := defaultTracker.ErrorRate(window)
	return total
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type bucket struct {
	second    int64
	successes int
	errors    int
}

// Tracker holds one bucket per second for the last horizon seconds.
type Tracker struct {
	mu      sync.Mutex
	buckets [horizon]bucket
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLocked().successes++
}

func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLocked().errors++
}

// currentLocked returns the bucket for the current second, clearing it if it
// last held an older second. Must be called with mu held.
func (t *Tracker) currentLocked() *bucket {
	sec := t.now().Unix()
	b := &t.buckets[sec%horizon]
	if b.second != sec {
		*b = bucket{second: sec}
	}
	return b
}

// ErrorRate sums buckets whose second falls within the window. Windows longer
// than the horizon are clamped to it.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	if seconds > horizon {
		seconds = horizon
	}
	now := t.now().Unix()
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.second > now-seconds && b.second <= now {
			errors += b.errors
			total += b.errors + b.successes
		}
	}
	return errors, total
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = [horizon]bucket{}
}
