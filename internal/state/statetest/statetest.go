// Package statetest holds the behavioural checks every state.Store backend must pass.
package statetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cockpit/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend creates an empty store together with a function that moves the
// store's notion of time forward (lease expiry). Backends driven by the wall
// clock can return time.Sleep.
type Backend func(t *testing.T) (state.Store, func(time.Duration))

// Run exercises a Store backend.
func Run(t *testing.T, backend Backend) {
	newStore := func(t *testing.T) state.Store {
		s, _ := backend(t)
		return s
	}

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "current_task_id")
		require.ErrorIs(t, err, state.ErrKeyNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "current_task_id", "j1"))
		require.NoError(t, s.Set(ctx, "current_task_id", "j2"))

		got, err := s.Get(ctx, "current_task_id")
		require.NoError(t, err)
		assert.Equal(t, "j2", got)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})

	t.Run("lock is exclusive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		lease, err := s.TryObtain(ctx, "task_lock", time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, lease.Token())

		_, err = s.TryObtain(ctx, "task_lock", time.Minute)
		require.ErrorIs(t, err, state.ErrNotObtained)

		other, err := s.TryObtain(ctx, "other_lock", time.Minute)
		require.NoError(t, err, "locks with different names are independent")
		require.NoError(t, other.Release(ctx))

		require.NoError(t, lease.Release(ctx))

		again, err := s.TryObtain(ctx, "task_lock", time.Minute)
		require.NoError(t, err)
		assert.NotEqual(t, lease.Token(), again.Token())
		require.NoError(t, again.Release(ctx))
	})

	t.Run("double release", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		lease, err := s.TryObtain(ctx, "task_lock", time.Minute)
		require.NoError(t, err)
		require.NoError(t, lease.Release(ctx))
		require.ErrorIs(t, lease.Release(ctx), state.ErrLockNotHeld)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		s, advance := backend(t)
		ctx := context.Background()

		stale, err := s.TryObtain(ctx, "task_lock", 50*time.Millisecond)
		require.NoError(t, err)

		advance(100 * time.Millisecond)

		fresh, err := s.TryObtain(ctx, "task_lock", time.Minute)
		require.NoError(t, err)

		require.ErrorIs(t, stale.Release(ctx), state.ErrLockNotHeld, "stale owner must not release the new lease")
		require.NoError(t, fresh.Release(ctx))
	})

	t.Run("with lock serializes critical sections", func(t *testing.T) {
		s := newStore(t)
		opts := state.LockOptions{Name: "task_lock", Wait: 10 * time.Second, TTL: 10 * time.Second}

		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := state.WithLock(context.Background(), s, opts, func(context.Context) error {
					n := inside.Add(1)
					for {
						cur := maxInside.Load()
						if n <= cur || maxInside.CompareAndSwap(cur, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inside.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside.Load())
	})
}
