// Package dispatch delivers due scheduled messages, one bounded cycle at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/service-reminders/internal/cache"
	"github.com/LeventeLantos/service-reminders/internal/metrics"
	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/repo"
	"github.com/LeventeLantos/service-reminders/internal/service"
)

const (
	DefaultBatchSize = 500
	DefaultClaimTTL  = 5 * time.Minute
)

var ErrResolutionFailure = errors.New("resolution failure")

type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
	MarkSent(ctx context.Context, id, remoteMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type result string

const (
	resultSent    result = "sent"
	resultFailed  result = "failed"
	resultSkipped result = "skipped"
	resultError   result = "error"
)

// Summary describes one cycle. Errored messages stay pending for the next cycle.
type Summary struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Due       int           `json:"due"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Err       string        `json:"error,omitempty"`
}

func (s *Summary) add(r result) {
	switch r {
	case resultSent:
		s.Sent++
	case resultFailed:
		s.Failed++
	case resultSkipped:
		s.Skipped++
	default:
		s.Errors++
	}
}

type Dispatcher struct {
	store    Store
	sender   service.Sender
	cache    cache.DeliveryCache
	batch    int
	workers  int
	claimTTL time.Duration
	now      func() time.Time
	log      *slog.Logger

	last atomic.Pointer[Summary]
}

type Option func(*Dispatcher)

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithCache enables the Redis claim guard and delivery receipts.
func WithCache(c cache.DeliveryCache, claimTTL time.Duration) Option {
	return func(d *Dispatcher) {
		d.cache = c
		if claimTTL > 0 {
			d.claimTTL = claimTTL
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func New(store Store, sender service.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		sender:   sender,
		batch:    DefaultBatchSize,
		workers:  1,
		claimTTL: DefaultClaimTTL,
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle processes the messages due now. It never returns an error and never panics;
// problems are logged, counted and reported in the Summary.
func (d *Dispatcher) RunCycle(ctx context.Context) (sum Summary) {
	sum.StartedAt = d.now()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch cycle panic recovered", "panic", r)
			metrics.DispatchCycleErrors.Inc()
			sum.Err = fmt.Sprint(r)
		}
		sum.Duration = time.Since(start)
		metrics.DispatchCycleDuration.Observe(sum.Duration.Seconds())

		last := sum
		d.last.Store(&last)
	}()

	due, err := d.store.ListDue(ctx, sum.StartedAt, d.batch)
	if err != nil {
		metrics.DispatchCycleErrors.Inc()
		d.log.Error("list due messages failed", "err", err)
		sum.Err = err.Error()
		return sum
	}
	sum.Due = len(due)
	if len(due) == 0 {
		return sum
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.workers)

	for _, m := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := d.handle(ctx, m)
			metrics.DispatchedMessages.WithLabelValues(string(r)).Inc()

			mu.Lock()
			sum.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info("dispatch cycle completed",
		"due", sum.Due,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
	)
	return sum
}

// LastCycle returns the summary of the most recent cycle, if any ran.
func (d *Dispatcher) LastCycle() (Summary, bool) {
	if p := d.last.Load(); p != nil {
		return *p, true
	}
	return Summary{}, false
}

func (d *Dispatcher) handle(ctx context.Context, m model.ScheduledMessage) (r result) {
	log := d.log.With("message_id", m.ID, "vehicle_id", m.VehicleID, "contact_id", m.ContactID)

	defer func() {
		if p := recover(); p != nil {
			log.Error("message handling panic recovered", "panic", p)
			r = resultError
		}
	}()

	if d.cache != nil {
		ok, err := d.cache.Claim(ctx, m.ID, d.claimTTL)
		switch {
		case err != nil:
			log.Warn("claim unavailable, dispatching unguarded", "err", err)
		case !ok:
			log.Debug("message claimed elsewhere")
			return resultSkipped
		}

		receipt, err := d.cache.LookupSent(ctx, m.ID)
		if err != nil {
			log.Warn("receipt lookup failed", "err", err)
		}
		if receipt != nil {
			log.Info("delivery receipt found, recording without resend", "remote_message_id", receipt.RemoteMessageID)
			return d.persist(ctx, log, m.ID, resultSent, func() error {
				return d.store.MarkSent(ctx, m.ID, receipt.RemoteMessageID, receipt.SentAt)
			})
		}
	}

	contact, err := d.resolve(ctx, m)
	if err != nil {
		if !errors.Is(err, ErrResolutionFailure) {
			log.Error("resolve message failed", "err", err)
			d.release(ctx, log, m.ID)
			return resultError
		}
		return d.fail(ctx, log, m.ID, "resolution_failure", err)
	}

	if strings.TrimSpace(contact.PhoneNumber) == "" {
		return d.fail(ctx, log, m.ID, service.Reason(service.ErrInvalidRecipient),
			fmt.Errorf("contact %d has no phone number", contact.ID))
	}

	remoteID, err := d.sender.Send(ctx, contact.PhoneNumber, m.Content)
	if err != nil {
		return d.fail(ctx, log, m.ID, service.Reason(err), err)
	}

	sentAt := d.now()
	if d.cache != nil {
		if err := d.cache.StoreSent(ctx, m.ID, remoteID, sentAt); err != nil {
			log.Warn("store delivery receipt failed", "err", err)
		}
	}

	return d.persist(ctx, log, m.ID, resultSent, func() error {
		return d.store.MarkSent(ctx, m.ID, remoteID, sentAt)
	})
}

// resolve loads the contact and vehicle. A missing row is a ResolutionFailure; any other
// error is transient and leaves the message pending.
func (d *Dispatcher) resolve(ctx context.Context, m model.ScheduledMessage) (*model.Contact, error) {
	contact, err := d.store.GetContact(ctx, m.ContactID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: contact %d not found", ErrResolutionFailure, m.ContactID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := d.store.GetVehicle(ctx, m.VehicleID); errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: vehicle %d not found", ErrResolutionFailure, m.VehicleID)
	} else if err != nil {
		return nil, err
	}
	return contact, nil
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, id, code string, cause error) result {
	log.Warn("message failed", "reason", code, "err", cause)
	reason := code + ": " + cause.Error()
	return d.persist(ctx, log, id, resultFailed, func() error {
		return d.store.MarkFailed(ctx, id, reason)
	})
}

// persist commits one message's outcome. On failure the message stays pending and is
// picked up again next cycle.
func (d *Dispatcher) persist(ctx context.Context, log *slog.Logger, id string, r result, write func() error) result {
	err := write()
	switch {
	case err == nil:
		return r
	case errors.Is(err, repo.ErrNotPending):
		log.Info("message left pending state during dispatch, outcome dropped", "outcome", string(r))
		return resultSkipped
	default:
		log.Error("persist message outcome failed, will retry next cycle", "outcome", string(r), "err", err)
		d.release(ctx, log, id)
		return resultError
	}
}

func (d *Dispatcher) release(ctx context.Context, log *slog.Logger, id string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Release(ctx, id); err != nil {
		log.Warn("release claim failed", "err", err)
	}
}
