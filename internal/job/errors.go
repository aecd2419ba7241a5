package job

import (
	"errors"
	"fmt"

	"cockpit/internal/apperrors"
)

// Error codes. Match with errors.Is; each is carried by an *apperrors.Error
// whose class drives the generic HTTP mapping.
var (
	ErrLockContention     = errors.New("lock contention")
	ErrJobAlreadyRunning  = errors.New("job already running")
	ErrJobNotFound        = errors.New("job not found")
	ErrNoJobEverRan       = errors.New("no job ever ran")
	ErrOutputNotAvailable = errors.New("output not available")
	ErrUnknownStatus      = errors.New("unknown job status")
)

// NotFoundError is what Queue implementations return for ids they have no record of.
func NotFoundError(id string) error {
	e := apperrors.NotFound("job", id).WithCode(ErrJobNotFound)
	e.Message = "Could not find task " + id
	return e
}

func lockContentionError(cause error) error {
	return apperrors.Unavailable("job.start", "Could not acquire lock").
		WithCode(ErrLockContention).
		WithCause(cause)
}

func alreadyRunningError(id string) error {
	return apperrors.Conflict("job", id, "Another task is already running: "+id).
		WithCode(ErrJobAlreadyRunning)
}

func noJobEverRanError() error {
	return &apperrors.Error{
		Sentinel: apperrors.ErrNotFound,
		Code:     ErrNoJobEverRan,
		Message:  "The task never ran.",
		Resource: "job",
	}
}

func outputNotAvailableError(id string, s Status) error {
	e := apperrors.Validation("task_id",
		fmt.Sprintf("Only tasks success/failure has output. Task %s is in state %s.", id, s)).
		WithCode(ErrOutputNotAvailable)
	e.ID = id
	return e
}

func unknownStatusError(id string, cause error) error {
	e := apperrors.Upstream("queue.query",
		fmt.Sprintf("Task %s reported an unrecognized status", id)).
		WithCode(ErrUnknownStatus).
		WithCause(cause)
	e.ID = id
	return e
}
