package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cockpit/internal/observability"
	"cockpit/internal/state"
)

// DefaultLockName is the admission lock key.
const DefaultLockName = "task_lock"

// Coordinator admits at most one job at a time and answers status, output and
// cancellation for the job the pointer names or an explicit id.
//
// The Coordinator holds no job state of its own. The pointer and the lock live
// in the shared store and job state lives in the queue, so any number of
// coordinators may front the same store and queue.
type Coordinator struct {
	queue    Queue
	store    state.Store
	pointer  pointer
	lock     state.LockOptions
	metrics  *observability.Metrics
	notifier *Notifier
	logger   *slog.Logger
}

// Options configures a Coordinator. The zero value is usable.
type Options struct {
	Lock     state.LockOptions      // Name defaults to task_lock
	Metrics  *observability.Metrics // optional
	Notifier *Notifier              // optional
}

// NewCoordinator creates a coordinator over queue and store.
func NewCoordinator(queue Queue, store state.Store, opts Options) *Coordinator {
	if opts.Lock.Name == "" {
		opts.Lock.Name = DefaultLockName
	}
	return &Coordinator{
		queue:    queue,
		store:    store,
		pointer:  pointer{store: store},
		lock:     opts.Lock,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		logger:   slog.With("component", "coordinator"),
	}
}

// Start admits a new job unless the last admitted job is still pending or
// running. The read-check-submit sequence runs under the admission lock.
func (c *Coordinator) Start(ctx context.Context) (*Info, error) {
	var admitted *Info
	requested := time.Now()

	err := state.WithLock(ctx, c.store, c.lock, func(ctx context.Context) error {
		c.recordLockWait(ctx, requested, true)

		if current, err := c.running(ctx); err != nil {
			return err
		} else if current != "" {
			return alreadyRunningError(current)
		}

		id, err := c.queue.Submit(ctx)
		if err != nil {
			return err
		}
		if err := c.pointer.set(ctx, id); err != nil {
			// The job is queued but unreachable through the pointer.
			c.logger.Error("Job submitted but pointer not updated", "jobId", id, "error", err)
			return err
		}

		admitted = &Info{ID: id, Status: StatusPending}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, state.ErrNotObtained):
		c.recordLockWait(ctx, requested, false)
		c.recordRejected(ctx, observability.ReasonLockContention)
		c.logger.Warn("Admission lock contended", "lock", c.lock.Name, "error", err)
		return nil, lockContentionError(err)
	case errors.Is(err, ErrJobAlreadyRunning):
		c.recordRejected(ctx, observability.ReasonAlreadyRunning)
		return nil, err
	default:
		c.recordRejected(ctx, observability.ReasonError)
		c.logger.Error("Job admission failed", "error", err)
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordExecution(ctx)
	}
	c.notifier.Admitted(admitted.ID)
	c.logger.Info("Job admitted", "jobId", admitted.ID)

	return admitted, nil
}

// running returns the id of the pointed-to job if it is still non-terminal,
// or "" if the slot is free.
func (c *Coordinator) running(ctx context.Context) (string, error) {
	id, err := c.pointer.get(ctx)
	if errors.Is(err, ErrNoJobEverRan) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	report, err := c.queue.Query(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		// Pruned by queue retention; nothing of it can still be running.
		c.logger.Warn("Current job unknown to queue, slot is free", "jobId", id)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	status, err := ParseStatus(report.State)
	if err != nil {
		return "", unknownStatusError(id, err)
	}
	if status.IsTerminal() {
		return "", nil
	}
	return id, nil
}

// Status returns the state of job id, or of the current job when id is empty.
func (c *Coordinator) Status(ctx context.Context, id string) (*Info, error) {
	report, status, err := c.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return newInfo(report, status), nil
}

// Output returns the result of a finished job. For a failed job it returns
// the failure detail, since no partial output survives a failure.
func (c *Coordinator) Output(ctx context.Context, id string) (string, error) {
	return c.outcome(ctx, id, func(r *Report) string { return r.Output })
}

// Error returns the failure detail of a failed job, or "" for a successful one.
func (c *Coordinator) Error(ctx context.Context, id string) (string, error) {
	return c.outcome(ctx, id, func(*Report) string { return "" })
}

func (c *Coordinator) outcome(ctx context.Context, id string, onSuccess func(*Report) string) (string, error) {
	report, status, err := c.resolve(ctx, id)
	if err != nil {
		return "", err
	}
	switch status {
	case StatusSuccess:
		return onSuccess(report), nil
	case StatusFailure:
		return report.FailureDetail, nil
	default:
		return "", outputNotAvailableError(report.ID, status)
	}
}

// Cancel force-terminates job id, or the current job when id is empty, and
// returns the status observed right after the revoke. That status may still be
// STARTED; termination completes asynchronously. Cancelling a terminal job
// issues no revoke and returns its status unchanged.
func (c *Coordinator) Cancel(ctx context.Context, id string) (*Info, error) {
	report, status, err := c.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.IsTerminal() {
		return newInfo(report, status), nil
	}

	logger := c.logger.With("jobId", report.ID)
	if err := c.queue.Revoke(ctx, report.ID); err != nil {
		logger.Error("Job revoke failed", "error", err)
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordRevocation(ctx)
	}

	info := newInfo(report, status)
	if after, afterStatus, err := c.resolve(ctx, report.ID); err == nil {
		info = newInfo(after, afterStatus)
	} else {
		logger.Warn("Status after revoke unavailable, reporting prior status", "error", err)
	}

	c.notifier.Revoked(info.ID, info.Status)
	logger.Info("Job revoked", "status", info.Status)
	return info, nil
}

// resolve finds the job for id (the pointer when id is empty) and parses its state.
func (c *Coordinator) resolve(ctx context.Context, id string) (*Report, Status, error) {
	if id == "" {
		current, err := c.pointer.get(ctx)
		if err != nil {
			return nil, "", err
		}
		id = current
	}

	report, err := c.queue.Query(ctx, id)
	if err != nil {
		return nil, "", err
	}

	status, err := ParseStatus(report.State)
	if err != nil {
		return nil, "", unknownStatusError(id, err)
	}
	return report, status, nil
}

func (c *Coordinator) recordLockWait(ctx context.Context, since time.Time, obtained bool) {
	if c.metrics != nil {
		c.metrics.RecordLockWait(ctx, time.Since(since).Seconds(), obtained)
	}
}

func (c *Coordinator) recordRejected(ctx context.Context, reason string) {
	if c.metrics != nil {
		c.metrics.RecordAdmissionRejected(ctx, reason)
	}
}

