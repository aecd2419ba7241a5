// Package redisstore implements state.Store on Redis. The admission lock is
// a redislock lease (SET NX PX with a random token, released by a
// compare-and-delete script), so every API instance pointed at the same Redis
// shares one mutual exclusion domain.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cockpit/internal/apperrors"
	"cockpit/internal/state"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed state.Store.
type Store struct {
	client *redis.Client
	locker *redislock.Client
}

// New connects to the Redis server at url (redis://[user:pass@]host:port[/db]).
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(redis.NewClient(opts)), nil
}

// NewFromClient wraps an existing client. The store takes ownership and closes it on Close.
func NewFromClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		locker: redislock.New(client),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", state.ErrKeyNotFound
	}
	if err != nil {
		return "", apperrors.Internal("redis.get", err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return apperrors.Internal("redis.set", err)
	}
	return nil
}

// TryObtain makes one attempt at the lock; retries are driven by state.Obtain.
func (s *Store) TryObtain(ctx context.Context, name string, ttl time.Duration) (state.Lease, error) {
	lock, err := s.locker.Obtain(ctx, name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, state.ErrNotObtained
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Internal("redis.obtainLock", err)
	}
	return &lease{lock: lock}, nil
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

type lease struct {
	lock *redislock.Lock
}

func (l *lease) Token() string { return l.lock.Token() }

func (l *lease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return state.ErrLockNotHeld
	}
	if err != nil {
		return apperrors.Internal("redis.releaseLock", err)
	}
	return nil
}

var _ state.Store = (*Store)(nil)
