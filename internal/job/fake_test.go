package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeQueue is an in-memory Queue whose jobs only move when a test moves them.
type fakeQueue struct {
	mu        sync.Mutex
	jobs      map[string]*Report
	next      int
	submits   int
	revokes   int
	submitErr error
	// revokeTo is the state a revoked job is put in; empty leaves it unchanged.
	revokeTo Status
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*Report), revokeTo: StatusRevoked}
}

func (q *fakeQueue) Submit(context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return "", q.submitErr
	}
	q.next++
	q.submits++
	id := fmt.Sprintf("J%d", q.next)
	q.jobs[id] = &Report{ID: id, State: string(StatusPending)}
	return id, nil
}

func (q *fakeQueue) Query(_ context.Context, id string) (*Report, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.jobs[id]
	if !ok {
		return nil, NotFoundError(id)
	}
	c := *r
	return &c, nil
}

func (q *fakeQueue) Revoke(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.jobs[id]
	if !ok {
		return NotFoundError(id)
	}
	q.revokes++
	if q.revokeTo != "" {
		r.State = string(q.revokeTo)
		if q.revokeTo.IsTerminal() {
			now := time.Now()
			r.CompletedAt = &now
		}
	}
	return nil
}

func (q *fakeQueue) Ready(context.Context) error { return nil }
func (q *fakeQueue) Close() error                { return nil }

// set moves a job to state; output and detail are stored as given.
func (q *fakeQueue) set(id, state, output, detail string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := q.jobs[id]
	r.State = state
	r.Output = output
	r.FailureDetail = detail
	if s, err := ParseStatus(state); err == nil && s.IsTerminal() {
		now := time.Now()
		r.CompletedAt = &now
	}
}

func (q *fakeQueue) forget(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
}

func (q *fakeQueue) counts() (submits, revokes int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits, q.revokes
}

var errQueueDown = errors.New("queue down")
