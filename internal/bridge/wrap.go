package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Exclusive serializes calls to inner. Waiting callers give up when their
// context ends.
func Exclusive(inner Client) Client {
	sem := semaphore.NewWeighted(1)
	return ClientFunc(func(ctx context.Context, op Operation, args ...any) (any, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for bridge access: %w", err)
		}
		defer sem.Release(1)
		return inner.Call(ctx, op, args...)
	})
}

// Paced limits calls to rps with the given burst. A non-positive rps returns inner unchanged.
func Paced(inner Client, rps float64, burst int) Client {
	if rps <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return ClientFunc(func(ctx context.Context, op Operation, args ...any) (any, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for bridge rate limit: %w", err)
		}
		return inner.Call(ctx, op, args...)
	})
}

// WithTimeout bounds every call to d. A non-positive d returns inner unchanged.
func WithTimeout(inner Client, d time.Duration) Client {
	if d <= 0 {
		return inner
	}
	return ClientFunc(func(ctx context.Context, op Operation, args ...any) (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return inner.Call(callCtx, op, args...)
	})
}

// Observer receives the outcome of every bridge call.
type Observer interface {
	ObserveBridgeCall(op string, elapsed time.Duration, err error)
}

// Observed reports each call made through inner to obs.
func Observed(inner Client, obs Observer) Client {
	if obs == nil {
		return inner
	}
	return ClientFunc(func(ctx context.Context, op Operation, args ...any) (any, error) {
		started := time.Now()
		result, err := inner.Call(ctx, op, args...)
		obs.ObserveBridgeCall(string(op), time.Since(started), err)
		return result, err
	})
}
