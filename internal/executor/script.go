package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long Execute waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// ScriptConfig configures the script runner.
type ScriptConfig struct {
	Command []string      // argv; defaults to sh <Path>
	Path    string        // script run by the default command (default: script.sh)
	Dir     string        // working directory, empty = current
	Env     []string      // extra environment, appended to the process environment
	LogDir  string        // if set, stdout and stderr are also written to <LogDir>/<jobID>.log
	Timeout time.Duration // 0 = no limit beyond cancellation
}

func (c ScriptConfig) withDefaults() ScriptConfig {
	if c.Path == "" {
		c.Path = "script.sh"
	}
	if len(c.Command) == 0 {
		c.Command = []string{"sh", c.Path}
	}
	return c
}

// ExitError is returned when the script exits unsuccessfully.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d\n\n%s", e.Code, e.Stderr)
}

// Script runs an external command per job. Its stdout is the job's result;
// on a non-zero exit the stderr becomes the failure detail.
type Script struct {
	config ScriptConfig
	logger *slog.Logger
}

// NewScript creates a script runner.
func NewScript(cfg ScriptConfig) *Script {
	return &Script{
		config: cfg.withDefaults(),
		logger: slog.With("component", "executor", "executor", KindScript),
	}
}

// Execute runs the command and waits for it. Cancelling ctx kills the process
// and everything it started.
func (s *Script) Execute(ctx context.Context, jobID string) (string, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	logger := s.logger.With("jobId", jobID)
	argv := s.config.Command

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.config.Dir
	cmd.Env = append(append(os.Environ(), s.config.Env...), "COCKPIT_JOB_ID="+jobID)
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if s.config.LogDir != "" {
		logFile, err := s.openLog(jobID)
		if err != nil {
			return "", err
		}
		defer logFile.Close()
		cmd.Stdout = io.MultiWriter(&stdout, logFile)
		cmd.Stderr = io.MultiWriter(&stderr, logFile)
	}

	logger.Info("Script started", "command", argv)
	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("Script stopped", "reason", ctxErr, "duration", duration)
		return "", ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		logger.Info("Script failed", "exitCode", exitErr.ExitCode(), "duration", duration)
		return "", &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
	default:
		return "", fmt.Errorf("failed to run script: %w", err)
	}

	logger.Info("Script finished", "duration", duration)
	return strings.TrimRight(stdout.String(), "\n"), nil
}

func (s *Script) openLog(jobID string) (*os.File, error) {
	if err := os.MkdirAll(s.config.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(s.config.LogDir, filepath.Base(jobID)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	return f, nil
}
