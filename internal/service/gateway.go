package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/service-reminders/internal/metrics"
	"github.com/LeventeLantos/service-reminders/internal/phone"
	"github.com/LeventeLantos/service-reminders/internal/ratelimit"
)

const (
	DefaultContentMax     = 4800
	DefaultCarrierTimeout = 10 * time.Second
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrMessageTooLong   = errors.New("message too long")
	ErrRateLimited      = errors.New("rate limited")
	ErrProviderError    = errors.New("provider error")
)

// SendClient is the carrier transport.
type SendClient interface {
	Submit(ctx context.Context, to, from, body string) (providerMessageID string, err error)
}

// Gateway validates, rate limits and submits single outbound messages.
type Gateway struct {
	client     SendClient
	limiter    ratelimit.Limiter
	from       string
	contentMax int
	timeout    time.Duration
	log        *slog.Logger

	// One lock per recipient so admit, submit and record form a single step.
	recipients recipientLocks
}

type GatewayOption func(*Gateway)

func WithContentMax(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.contentMax = n
		}
	}
}

func WithCarrierTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func NewGateway(client SendClient, limiter ratelimit.Limiter, from string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client:     client,
		limiter:    limiter,
		from:       from,
		contentMax: DefaultContentMax,
		timeout:    DefaultCarrierTimeout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send delivers body to phoneNumber and returns the carrier's message id. Quota is
// consumed only when the carrier accepted the message. There is no retry here.
func (g *Gateway) Send(ctx context.Context, phoneNumber, body string) (string, error) {
	num, err := phone.Normalize(phoneNumber)
	if err != nil {
		return "", g.reject(fmt.Errorf("%w: %v", ErrInvalidRecipient, err))
	}

	if n := utf8.RuneCountInString(body); n > g.contentMax {
		return "", g.reject(fmt.Errorf("%w: %d chars exceeds %d", ErrMessageTooLong, n, g.contentMax))
	}

	unlock := g.recipients.lock(num.E164)
	defer unlock()

	ok, err := g.limiter.Admit(ctx, num.E164)
	if err != nil {
		return "", g.reject(fmt.Errorf("%w: limiter unavailable: %v", ErrRateLimited, err))
	}
	if !ok {
		return "", g.reject(fmt.Errorf("%w: %s", ErrRateLimited, num.E164))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	remoteID, err := g.client.Submit(callCtx, num.E164, g.from, body)
	metrics.CarrierLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", g.reject(fmt.Errorf("%w: %v", ErrProviderError, err))
	}

	if err := g.limiter.Record(ctx, num.E164); err != nil {
		// The message is out; losing one quota entry is preferable to reporting a failure.
		g.log.Warn("rate limit record failed", "to", num.E164, "err", err)
	}

	metrics.DeliveryAttempts.WithLabelValues("sent").Inc()
	return remoteID, nil
}

func (g *Gateway) reject(err error) error {
	metrics.DeliveryAttempts.WithLabelValues(Reason(err)).Inc()
	return err
}

// Reason maps a gateway error to a short machine-readable code.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrProviderError):
		return "provider_error"
	default:
		return "unknown"
	}
}
