// Package executor provides the units of work the task queues run. An
// executor either returns the job's result text or an error whose message is
// the failure detail reported for the job.
package executor

import (
	"context"
	"fmt"
	"time"

	"cockpit/internal/config"
)

// Kinds of executor.
const (
	KindScript = "script"
	KindDemo   = "demo"
)

// Executor runs one job to completion.
type Executor interface {
	// Execute runs the work for jobID. Cancelling ctx must stop the work.
	Execute(ctx context.Context, jobID string) (string, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, jobID string) (string, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, jobID string) (string, error) {
	return f(ctx, jobID)
}

// Config selects and configures an executor.
type Config struct {
	Kind   string
	Script ScriptConfig
	Demo   DemoConfig
}

// LoadConfigFromEnv loads executor configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		Kind: config.GetEnv("EXECUTOR", KindScript),
		Script: ScriptConfig{
			Command: config.GetListEnv("SCRIPT_COMMAND", nil),
			Path:    config.GetEnv("SCRIPT_PATH", "script.sh"),
			Dir:     config.GetEnv("SCRIPT_DIR", ""),
			LogDir:  config.GetEnv("LOG_DIR", ""),
			Timeout: config.GetDurationEnv("SCRIPT_TIMEOUT", 0),
		},
		Demo: DemoConfig{
			Duration: config.GetDurationEnv("DEMO_DURATION", 30*time.Second),
		},
	}
}

// New builds the executor cfg selects.
func New(cfg Config) (Executor, error) {
	switch cfg.Kind {
	case KindScript, "":
		return NewScript(cfg.Script), nil
	case KindDemo:
		return NewDemo(cfg.Demo), nil
	default:
		return nil, fmt.Errorf("unsupported executor %q", cfg.Kind)
	}
}
