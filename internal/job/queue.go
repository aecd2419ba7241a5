// Package job implements single-flight job admission: at most one job admitted
// while a previously admitted job is still pending or running, a pointer to the
// last admitted job, and status, output and cancellation on top of a task queue.
package job

import "context"

// Queue is the task queue the coordinator composes. It accepts units of work,
// runs them asynchronously and reports on them until its retention drops them.
//
// # State Management
//
// The queue is the SOURCE OF TRUTH for job state. The coordinator never caches
// a job's status; every call is a fresh Query. This allows several API
// instances to front one queue.
type Queue interface {
	// Submit enqueues a new unit of work and returns the id the queue assigned.
	// Ids are unique per submission and never reused.
	Submit(ctx context.Context) (string, error)

	// Query reports the queue-native state of a job. Returns an error matching
	// ErrJobNotFound if the queue has no record of id.
	Query(ctx context.Context, id string) (*Report, error)

	// Revoke force-terminates the job's worker. It may return before the worker
	// has stopped; the REVOKED state shows up in later queries.
	Revoke(ctx context.Context, id string) error

	// Ready checks the queue backend is usable.
	Ready(ctx context.Context) error

	// Close releases resources held by the queue.
	Close() error
}
