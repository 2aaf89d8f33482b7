package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
)

// BreakerConfig configures when repeated bridge failures stop reaching the device.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	// Zero selects the default.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before one probe call is let through.
	Timeout time.Duration
}

// Breaker fails calls fast while the bridge keeps failing.
type Breaker struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps inner with a circuit breaker named name.
func NewBreaker(name string, inner Client, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "bridge:" + name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Warn("bridge circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Cancelled callers and unsupported operations do not count against the device.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupported)
		},
	})

	return &Breaker{inner: inner, breaker: cb}
}

// Call implements Client.
func (b *Breaker) Call(ctx context.Context, op Operation, args ...any) (any, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Call(ctx, op, args...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("bridge unavailable: %w", err)
	}
	return result, err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

var _ Client = (*Breaker)(nil)
