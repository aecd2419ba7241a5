package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// DemoConfig configures the demo job.
type DemoConfig struct {
	Duration time.Duration // how long the job sleeps (default: 30s)
}

// Demo sleeps for a while, then greets with a random two-digit number.
type Demo struct {
	duration time.Duration
	logger   *slog.Logger
}

// NewDemo creates a demo executor.
func NewDemo(cfg DemoConfig) *Demo {
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Second
	}
	return &Demo{
		duration: cfg.Duration,
		logger:   slog.With("component", "executor", "executor", KindDemo),
	}
}

// Execute returns "hello NN" once the configured duration has passed.
func (d *Demo) Execute(ctx context.Context, jobID string) (string, error) {
	timer := time.NewTimer(d.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	out := fmt.Sprintf("hello %d", rand.IntN(90)+10)
	d.logger.Debug("Demo job finished", "jobId", jobID, "output", out)
	return out, nil
}
