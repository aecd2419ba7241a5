package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"cockpit/pkg/backoff"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(wait time.Duration) LockOptions {
	return LockOptions{
		Name:  "task_lock",
		Wait:  wait,
		TTL:   time.Minute,
		Retry: &backoff.Config{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	}
}

func TestWithLock_ReleasesOnSuccess(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	ran := false
	err := WithLock(context.Background(), s, fastOptions(time.Second), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	lease, err := s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err, "lock must be free after WithLock returns")
	require.NoError(t, lease.Release(context.Background()))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := WithLock(context.Background(), s, fastOptions(time.Second), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	assert.Panics(t, func() {
		_ = WithLock(context.Background(), s, fastOptions(time.Second), func(context.Context) error {
			panic("critical section exploded")
		})
	})

	_, err := s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)
}

func TestWithLock_ReleasesWhenCallerCancelled(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := WithLock(ctx, s, fastOptions(time.Second), func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	_, err = s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)
}

func TestWithLock_BoundedWait(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	held, err := s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	start := time.Now()
	called := false
	err = WithLock(context.Background(), s, fastOptions(100*time.Millisecond), func(context.Context) error {
		called = true
		return nil
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNotObtained)
	assert.False(t, called)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestWithLock_AcquiresAfterHolderReleases(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	held, err := s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = held.Release(context.Background())
	}()

	err = WithLock(context.Background(), s, fastOptions(2*time.Second), func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLock_CriticalSectionBoundedByTTL(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	opts := fastOptions(time.Second)
	opts.TTL = 50 * time.Millisecond

	err := WithLock(context.Background(), s, opts, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestObtain_ParentCancelled(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	held, err := s.TryObtain(context.Background(), "task_lock", time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Obtain(ctx, s, fastOptions(time.Second))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLockOptions_WithDefaults(t *testing.T) {
	t.Parallel()
	o := LockOptions{Name: "task_lock"}.withDefaults()
	assert.Equal(t, 3*time.Second, o.Wait)
	assert.Equal(t, 30*time.Second, o.TTL)
	require.NotNil(t, o.Retry)
}
