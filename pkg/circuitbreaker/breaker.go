// Package circuitbreaker stops webhook delivery to a host after repeated
// failures and probes it again once a cooldown has passed.
//
// States:
//   - Closed: requests allowed
//   - Open: requests blocked until the cooldown elapses
//   - HalfOpen: a single probe request allowed
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // consecutive failures before opening (default: 5)
	Cooldown  time.Duration // open duration before a probe (default: 30s)

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(key string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Breaker tracks consecutive failures for one key.
type Breaker struct {
	key    string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(key string, cfg Config) *Breaker {
	return &Breaker{
		key:    key,
		config: cfg.withDefaults(),
		now:    time.Now,
	}
}

// Allow reports whether a request may be attempted. In HalfOpen only one
// caller is let through until it records its result.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	var allowed, changed bool
	switch b.state {
	case Closed:
		allowed = true
	case Open:
		if b.now().Sub(b.openedAt) >= b.config.Cooldown {
			b.state = HalfOpen
			b.probing = true
			allowed, changed = true, true
		}
	case HalfOpen:
		if !b.probing {
			b.probing = true
			allowed = true
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(Open, HalfOpen)
	}
	return allowed
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()

	if from != Closed {
		b.notify(from, Closed)
	}
}

// RecordFailure counts a failure, opening the breaker at the threshold or
// immediately after a failed probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.probing = false
	if from == HalfOpen || b.failures >= b.config.Threshold {
		b.state = Open
		b.openedAt = b.now()
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.key, from, to)
	}
}
