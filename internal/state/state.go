// Package state defines the shared state store the admission coordinator
// composes: a string key/value space and a lease-based mutual exclusion
// primitive, both reachable by every coordinator instance.
package state

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned by Get when the key holds no value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotObtained is returned by TryObtain when another owner holds the lock.
	ErrNotObtained = errors.New("lock not obtained")

	// ErrLockNotHeld is returned by Release when the lease expired or was taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

// Store is the key/value and locking surface of a shared state backend.
// Implementations must be safe for concurrent use.
type Store interface {
	Locker

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key without expiry.
	Set(ctx context.Context, key, value string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Locker acquires named leases.
type Locker interface {
	// TryObtain makes a single atomic attempt to take the named lock for ttl.
	// Returns ErrNotObtained if the lock is held by someone else.
	TryObtain(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. It expires on its own after the TTL it was obtained with.
type Lease interface {
	// Token identifies the owner of the lease.
	Token() string

	// Release gives the lock up. Returns ErrLockNotHeld if the lease already expired.
	Release(ctx context.Context) error
}
