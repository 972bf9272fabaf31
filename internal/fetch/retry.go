package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BTCSentinel/internal/model"
)

// Policy is an explicit retry schedule around a single call site.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy retries three times after 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, Retryable: IsTransient}
}

// Backoff returns the wait before retry number attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the retry
// budget is spent. The returned error carries a model error kind.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !retryable(err) {
			return zero, classify(err, model.ErrPermanentSource)
		}
		if attempt == p.MaxRetries {
			break
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, classify(fmt.Errorf("after %d retries: %w", p.MaxRetries, lastErr), model.ErrTransientNetwork)
}

// classify attaches kind unless err already carries one.
func classify(err error, kind error) error {
	if model.KindOf(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsPermanent reports whether err should skip straight to the next source.
func IsPermanent(err error) bool {
	return errors.Is(err, model.ErrPermanentSource) || errors.Is(err, model.ErrDataIntegrity)
}
