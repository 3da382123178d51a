package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	log      *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// tickMu keeps manual runs from overlapping periodic ticks.
	tickMu sync.Mutex

	statMu       sync.Mutex
	lastTick     time.Time
	lastDuration time.Duration
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func New(interval time.Duration, tickFn func(context.Context), opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	s := &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// RunOnce runs a single tick on the caller's goroutine, waiting for any tick in progress.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.safeTick(ctx)
}

type Status struct {
	Running      bool      `json:"running"`
	Interval     string    `json:"interval"`
	Ticks        int64     `json:"ticks"`
	LastTick     time.Time `json:"lastTick,omitempty"`
	LastDuration string    `json:"lastDuration,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.statMu.Lock()
	last, dur := s.lastTick, s.lastDuration
	s.statMu.Unlock()

	st := Status{
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		Ticks:    s.ticks.Load(),
		LastTick: last,
	}
	if !last.IsZero() {
		st.LastDuration = dur.String()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", "panic", r)
		}
		s.statMu.Lock()
		s.lastTick = start
		s.lastDuration = time.Since(start)
		s.statMu.Unlock()
		s.ticks.Add(1)
	}()

	s.tickFn(ctx)
	s.log.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
