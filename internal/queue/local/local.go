// Package local implements job.Queue with an in-process worker pool. Job
// state lives in the API process, so it suits single-instance deployments;
// jobs do not survive a restart.
package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cockpit/internal/apperrors"
	"cockpit/internal/executor"
	"cockpit/internal/job"
	"cockpit/internal/observability"

	"github.com/google/uuid"
)

// Queue runs submitted jobs on at most Config.Workers goroutines at a time.
type Queue struct {
	executor executor.Executor
	config   Config
	metrics  *observability.Metrics
	onFinish func(*job.Report)
	state    *stateRepo
	slots    chan struct{}
	logger   *slog.Logger
	now      func() time.Time

	cancelMaintenance context.CancelFunc
	runWg             sync.WaitGroup
	closeMu           sync.Mutex // orders runWg.Add in Submit before Close's Wait
	closed            atomic.Bool
}

// Options holds optional collaborators.
type Options struct {
	Metrics *observability.Metrics // optional

	// OnFinish is called once per job when it reaches a terminal state.
	OnFinish func(*job.Report)
}

// New creates a queue and starts its maintenance loop.
func New(exec executor.Executor, cfg Config, opts Options) *Queue {
	cfg = cfg.withDefaults()

	q := &Queue{
		executor: exec,
		config:   cfg,
		metrics:  opts.Metrics,
		onFinish: opts.OnFinish,
		state:    newStateRepo(),
		slots:    make(chan struct{}, cfg.Workers),
		logger:   slog.With("component", "queue", "queue", "local"),
		now:      time.Now,
	}

	maintenanceCtx, cancel := context.WithCancel(context.Background())
	q.cancelMaintenance = cancel
	q.runWg.Add(1)
	go func() {
		defer q.runWg.Done()
		q.runMaintenance(maintenanceCtx, cfg.MaintenanceInterval)
	}()

	q.logger.Info("Queue started", "workers", cfg.Workers, "retention", cfg.Retention)
	return q
}

// Submit registers a PENDING job and schedules it.
func (q *Queue) Submit(ctx context.Context) (string, error) {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed.Load() {
		return "", apperrors.Unavailable("queue.submit", "queue is closed")
	}

	// Jobs outlive the request that submitted them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{
		id:          uuid.NewString(),
		state:       job.StatusPending,
		submittedAt: q.now(),
		cancel:      cancel,
	}
	q.state.add(t)

	q.runWg.Add(1)
	go q.run(runCtx, t.id)

	q.logger.Debug("Job queued", "jobId", t.id)
	return t.id, nil
}

// Query returns a snapshot of the job's state.
func (q *Queue) Query(_ context.Context, id string) (*job.Report, error) {
	r, ok := q.state.get(id)
	if !ok {
		return nil, job.NotFoundError(id)
	}
	return r, nil
}

// Revoke cancels the job. A PENDING job becomes REVOKED at once; a STARTED job
// becomes REVOKED once its executor returns. Revoking a terminal job does nothing.
func (q *Queue) Revoke(_ context.Context, id string) error {
	var finished *job.Report
	ok := q.state.update(id, func(t *task) {
		if t.state.IsTerminal() {
			return
		}
		t.revoked = true
		t.cancel()
		if t.state == job.StatusPending {
			t.state = job.StatusRevoked
			t.completedAt = q.now()
			finished = t.report()
		}
	})
	if !ok {
		return job.NotFoundError(id)
	}

	q.logger.Info("Job revoke requested", "jobId", id)
	if finished != nil {
		q.finished(finished, 0)
	}
	return nil
}

// Ready fails once the queue is closed.
func (q *Queue) Ready(context.Context) error {
	if q.closed.Load() {
		return errors.New("local queue is closed")
	}
	return nil
}

// Close cancels every job and waits for the workers to return. Unlike the
// Docker queue, running jobs are stopped: they cannot outlive the process.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	swapped := q.closed.CompareAndSwap(false, true)
	q.closeMu.Unlock()
	if !swapped {
		return nil
	}
	q.cancelMaintenance()
	q.state.cancelAll()
	q.runWg.Wait()
	return nil
}

func (q *Queue) run(ctx context.Context, id string) {
	defer q.runWg.Done()
	logger := q.logger.With("jobId", id)

	select {
	case q.slots <- struct{}{}:
		defer func() { <-q.slots }()
	case <-ctx.Done():
		// Revoked (or queue closed) while waiting for a slot.
		q.complete(id, "", ctx.Err())
		return
	}

	started := false
	q.state.update(id, func(t *task) {
		if t.state == job.StatusPending {
			t.state = job.StatusStarted
			t.startedAt = q.now()
			started = true
		}
	})
	if !started {
		return
	}

	logger.Info("Job started")
	output, err := q.execute(ctx, id)
	q.complete(id, output, err)
}

// execute runs the executor, turning a panic into a failure.
func (q *Queue) execute(ctx context.Context, id string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Executor panicked", "jobId", id, "panic", r)
			err = errors.New("executor panicked")
		}
	}()
	return q.executor.Execute(ctx, id)
}

// complete moves a non-terminal job to its terminal state.
func (q *Queue) complete(id, output string, runErr error) {
	var finished *job.Report
	var duration time.Duration

	q.state.update(id, func(t *task) {
		if t.state.IsTerminal() {
			return
		}
		now := q.now()
		switch {
		case t.revoked:
			t.state = job.StatusRevoked
		case runErr == nil:
			t.state = job.StatusSuccess
			t.output = output
		default:
			t.state = job.StatusFailure
			t.failureDetail = runErr.Error()
		}
		t.completedAt = now
		t.cancel()
		if !t.startedAt.IsZero() {
			duration = now.Sub(t.startedAt)
		}
		finished = t.report()
	})

	if finished != nil {
		q.finished(finished, duration)
	}
}

func (q *Queue) finished(r *job.Report, duration time.Duration) {
	q.logger.Info("Job finished", "jobId", r.ID, "state", r.State, "duration", duration)
	if q.metrics != nil {
		q.metrics.RecordJobFinished(context.Background(), r.State, duration.Seconds())
	}
	if q.onFinish != nil {
		q.onFinish(r)
	}
}

// runMaintenance periodically prunes expired finished jobs.
func (q *Queue) runMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.cleanupExpiredJobs()
		}
	}
}

// cleanupExpiredJobs removes jobs that completed more than Retention ago.
func (q *Queue) cleanupExpiredJobs() {
	expired := q.state.expired(q.now().Add(-q.config.Retention))
	if len(expired) == 0 {
		return
	}

	logger := slog.With("component", "maintenance")
	for _, id := range expired {
		if q.state.release(id) {
			logger.Debug("Pruned expired job", "jobId", id)
		}
	}
	logger.Info("Maintenance complete", "cleaned", len(expired))
}

// Verify Queue implements job.Queue
var _ job.Queue = (*Queue)(nil)
