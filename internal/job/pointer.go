package job

import (
	"context"
	"errors"

	"cockpit/internal/apperrors"
	"cockpit/internal/state"
)

// PointerKey is the store key holding the id of the last admitted job.
const PointerKey = "current_task_id"

// pointer is the single cluster-wide slot naming the last admitted job. It is
// never cleared; "current" means last admitted, not currently running.
// Only Coordinator.Start writes it, and only while holding the admission lock.
type pointer struct {
	store state.Store
}

// get returns the current job id, or an ErrNoJobEverRan error if no job was ever admitted.
func (p pointer) get(ctx context.Context) (string, error) {
	id, err := p.store.Get(ctx, PointerKey)
	if errors.Is(err, state.ErrKeyNotFound) || (err == nil && id == "") {
		return "", noJobEverRanError()
	}
	if err != nil {
		return "", apperrors.Internal("pointer.get", err)
	}
	return id, nil
}

func (p pointer) set(ctx context.Context, id string) error {
	if err := p.store.Set(ctx, PointerKey, id); err != nil {
		return apperrors.Internal("pointer.set", err)
	}
	return nil
}
