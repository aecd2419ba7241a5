package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cockpit/pkg/backoff"
)

// releaseTimeout bounds the release call issued after the critical section.
const releaseTimeout = 2 * time.Second

// LockOptions configures a scoped acquisition.
type LockOptions struct {
	Name string        // lock key
	Wait time.Duration // maximum time spent acquiring (default: 3s)
	TTL  time.Duration // lease lifetime and critical section deadline (default: 30s)

	// Retry shapes the pause between attempts (default: 50ms doubling up to 500ms).
	Retry *backoff.Config
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Wait <= 0 {
		o.Wait = 3 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Retry == nil {
		o.Retry = &backoff.Config{Initial: 50 * time.Millisecond, Max: 500 * time.Millisecond, Jitter: 0.2}
	}
	return o
}

// Obtain retries TryObtain until it succeeds or opts.Wait elapses. On timeout
// it returns an error wrapping ErrNotObtained.
func Obtain(ctx context.Context, locker Locker, opts LockOptions) (Lease, error) {
	opts = opts.withDefaults()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
	defer cancel()

	for attempt := 1; ; attempt++ {
		lease, err := locker.TryObtain(waitCtx, opts.Name, opts.TTL)
		switch {
		case err == nil:
			return lease, nil
		case errors.Is(err, ErrNotObtained), errors.Is(err, context.DeadlineExceeded):
		default:
			return nil, err
		}

		if err := backoff.Sleep(waitCtx, backoff.Exponential(attempt, opts.Retry)); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s not acquired within %s", ErrNotObtained, opts.Name, opts.Wait)
		}
	}
}

// WithLock runs fn while holding the named lock. The lease is released on
// every exit path, including when fn returns an error or panics. fn receives
// a context that expires with the lease, so the critical section cannot
// outlive the mutual exclusion it relies on.
func WithLock(ctx context.Context, locker Locker, opts LockOptions, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	lease, err := Obtain(ctx, locker, opts)
	if err != nil {
		return err
	}

	logger := slog.With("component", "lock", "lock", opts.Name)
	defer func() {
		// Released even if the caller's context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			if errors.Is(err, ErrLockNotHeld) {
				logger.Warn("Lock lease expired before release")
				return
			}
			logger.Error("Lock release failed, lease will expire", "error", err, "ttl", opts.TTL)
		}
	}()

	criticalCtx, cancel := context.WithTimeout(ctx, opts.TTL)
	defer cancel()

	return fn(criticalCtx)
}
