package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. It provides the same semantics as the
// shared backends but only serializes callers within one process; use it for
// single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]string
	locks map[string]memoryLock
	now   func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
}

// Get returns the value for key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// TryObtain takes the lock if it is free or its previous lease expired.
func (m *MemoryStore) TryObtain(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[name]; ok && now.Before(held.expires) {
		return nil, ErrNotObtained
	}

	token := uuid.NewString()
	m.locks[name] = memoryLock{token: token, expires: now.Add(ttl)}
	return &memoryLease{store: m, name: name, token: token}, nil
}

func (m *MemoryStore) release(name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.locks[name]
	if !ok || held.token != token || !m.now().Before(held.expires) {
		return ErrLockNotHeld
	}
	delete(m.locks, name)
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

type memoryLease struct {
	store *MemoryStore
	name  string
	token string
}

func (l *memoryLease) Token() string { return l.token }

func (l *memoryLease) Release(context.Context) error {
	return l.store.release(l.name, l.token)
}

var _ Store = (*MemoryStore)(nil)
