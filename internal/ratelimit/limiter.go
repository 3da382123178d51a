// Package ratelimit implements per-recipient sliding-window admission control.
//
// Admission and recording are separate calls: a caller asks Admit before an attempt
// and calls Record only after the attempt succeeded, so failures never consume quota.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

const DefaultWindow = time.Hour

type Limiter interface {
	Admit(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string) error
}

// SlidingWindow keeps send timestamps in memory for the lifetime of the process.
// Recipients with no sends inside the window are forgotten.
type SlidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string][]time.Time
	lastSweep time.Time
}

func NewSlidingWindow(max int, window time.Duration) (*SlidingWindow, error) {
	if max <= 0 {
		return nil, errors.New("max must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	return &SlidingWindow{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}, nil
}

// WithClock replaces the time source, for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// live prunes key's timestamps and drops the entry once it is empty. Callers hold l.mu.
func (l *SlidingWindow) live(key string, now time.Time) []time.Time {
	times := prune(l.buckets[key], now.Add(-l.window))
	if len(times) == 0 {
		delete(l.buckets, key)
		return nil
	}
	l.buckets[key] = times
	return times
}

func (l *SlidingWindow) Admit(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.live(key, l.now())) < l.max, nil
}

func (l *SlidingWindow) Record(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.buckets[key] = append(l.live(key, now), now)

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}
	return nil
}

// sweep forgets every recipient whose sends all left the window. Callers hold l.mu.
func (l *SlidingWindow) sweep(now time.Time) {
	for key := range l.buckets {
		l.live(key, now)
	}
	l.lastSweep = now
}

// Count returns the number of sends inside the current window for key.
func (l *SlidingWindow) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.live(key, l.now()))
}

type Stats struct {
	TrackedNumbers int    `json:"trackedNumbers"`
	MaxPerWindow   int    `json:"maxPerWindow"`
	Window         string `json:"window"`
}

func (l *SlidingWindow) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(l.now())

	return Stats{
		TrackedNumbers: len(l.buckets),
		MaxPerWindow:   l.max,
		Window:         l.window.String(),
	}
}

// prune drops timestamps strictly older than cutoff. Timestamps are appended in order.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
