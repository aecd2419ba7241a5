package local

import (
	"context"
	"sync"
	"time"

	"cockpit/internal/job"
)

// task holds the runtime state for a single job.
type task struct {
	id            string
	state         job.Status
	submittedAt   time.Time
	startedAt     time.Time
	completedAt   time.Time
	output        string
	failureDetail string
	revoked       bool
	cancel        context.CancelFunc
}

func (t *task) report() *job.Report {
	r := &job.Report{
		ID:            t.id,
		State:         string(t.state),
		Output:        t.output,
		FailureDetail: t.failureDetail,
	}
	if !t.completedAt.IsZero() {
		completedAt := t.completedAt
		r.CompletedAt = &completedAt
	}
	return r
}

// stateRepo manages task state with thread-safe access.
type stateRepo struct {
	mu    sync.RWMutex
	tasks map[string]*task
}

func newStateRepo() *stateRepo {
	return &stateRepo{
		tasks: make(map[string]*task),
	}
}

func (r *stateRepo) add(t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.id] = t
}

// get returns a snapshot of the task's report.
func (r *stateRepo) get(id string) (*job.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tasks[id]
	if !exists {
		return nil, false
	}
	return t.report(), true
}

// update applies fn to the task under the write lock. Returns false if the task does not exist.
func (r *stateRepo) update(id string, fn func(*task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tasks[id]
	if !exists {
		return false
	}
	fn(t)
	return true
}

// release removes a task from the repository.
func (r *stateRepo) release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.tasks[id]
	delete(r.tasks, id)
	return exists
}

// expired returns the ids of terminal tasks that completed before cutoff.
func (r *stateRepo) expired(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, t := range r.tasks {
		if t.state.IsTerminal() && t.completedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// cancelAll cancels every task still holding a cancel func.
func (r *stateRepo) cancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		if t.cancel != nil {
			t.cancel()
		}
	}
}
