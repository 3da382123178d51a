package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestNewSlidingWindow_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewSlidingWindow(0, time.Hour); err == nil {
		t.Fatalf("expected error for max=0")
	}
	if _, err := NewSlidingWindow(10, 0); err == nil {
		t.Fatalf("expected error for window=0")
	}
}

// exerciseWindow sends ten messages a minute apart, expects the 11th denied, then
// ages the first one out of the window and expects exactly one free slot.
func exerciseWindow(t *testing.T, l Limiter, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()
	key := "+12135551212"

	for i := 0; i < 10; i++ {
		ok, err := l.Admit(ctx, key)
		if err != nil {
			t.Fatalf("Admit #%d error: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("expected send #%d admitted", i+1)
		}
		if err := l.Record(ctx, key); err != nil {
			t.Fatalf("Record #%d error: %v", i+1, err)
		}
		clock.Advance(time.Minute)
	}

	ok, err := l.Admit(ctx, key)
	if err != nil {
		t.Fatalf("Admit #11 error: %v", err)
	}
	if ok {
		t.Fatalf("expected 11th send denied")
	}

	// First send happened at t0; now is t0+10m. Move to just past t0+1h.
	clock.Advance(50*time.Minute + time.Second)

	ok, _ = l.Admit(ctx, key)
	if !ok {
		t.Fatalf("expected a slot to free once the oldest send aged out")
	}
	if err := l.Record(ctx, key); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	ok, _ = l.Admit(ctx, key)
	if ok {
		t.Fatalf("expected exactly one slot to free, got a second")
	}

	other, _ := l.Admit(ctx, "+13235550000")
	if !other {
		t.Fatalf("expected other recipients to be unaffected")
	}
}

func TestSlidingWindow_AdmitsTenDeniesEleventh(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, err := NewSlidingWindow(10, DefaultWindow)
	if err != nil {
		t.Fatalf("NewSlidingWindow error: %v", err)
	}
	l.WithClock(clock.Now)

	exerciseWindow(t, l, clock)
}

func TestSlidingWindow_AdmitDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()

	l, _ := NewSlidingWindow(1, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _ := l.Admit(ctx, "k")
		if !ok {
			t.Fatalf("admit #%d denied without any recorded send", i+1)
		}
	}
	if got := l.Count("k"); got != 0 {
		t.Fatalf("expected count 0, got %d", got)
	}
}

func TestSlidingWindow_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	l, _ := NewSlidingWindow(1000, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Record(ctx, "k")
		}()
	}
	wg.Wait()

	if got := l.Count("k"); got != 200 {
		t.Fatalf("expected 200 recorded sends, got %d", got)
	}
	if st := l.Stats(); st.TrackedNumbers != 1 || st.MaxPerWindow != 1000 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestSlidingWindow_ForgetsIdleRecipients(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, _ := NewSlidingWindow(10, time.Hour)
	l.WithClock(clock.Now)
	ctx := context.Background()

	for _, key := range []string{"+12135551212", "+13235550000", "+14155550100"} {
		_ = l.Record(ctx, key)
	}
	if got := l.Stats().TrackedNumbers; got != 3 {
		t.Fatalf("expected 3 tracked numbers, got %d", got)
	}

	// Admit on an unknown recipient must not start tracking it.
	if ok, _ := l.Admit(ctx, "+16195550199"); !ok {
		t.Fatalf("expected unknown recipient admitted")
	}
	if got := l.Stats().TrackedNumbers; got != 3 {
		t.Fatalf("admit created a bucket: %d tracked", got)
	}

	clock.Advance(time.Hour + time.Second)

	if got := l.Count("+12135551212"); got != 0 {
		t.Fatalf("expected aged-out count 0, got %d", got)
	}
	_ = l.Record(ctx, "+18585550123")
	if got := l.Stats().TrackedNumbers; got != 1 {
		t.Fatalf("expected idle recipients dropped, %d still tracked", got)
	}
}

func TestRedisWindow_AdmitsTenDeniesEleventh(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, err := NewRedisWindow(rdb, 10, DefaultWindow)
	if err != nil {
		t.Fatalf("NewRedisWindow error: %v", err)
	}
	l.WithClock(clock.Now)

	exerciseWindow(t, l, clock)

	if !mr.Exists("ratelimit:sms:+12135551212") {
		t.Fatalf("expected sorted set key to exist")
	}
}

func TestRedisWindow_ErrorWhenUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	l, _ := NewRedisWindow(rdb, 10, time.Hour)
	mr.Close()

	if _, err := l.Admit(context.Background(), "k"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
