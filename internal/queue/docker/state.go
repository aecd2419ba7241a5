package docker

import (
	"fmt"
	"strings"
	"time"

	"cockpit/internal/job"
)

// containerSnapshot is the part of a container inspect that decides job state.
type containerSnapshot struct {
	Status     string // created, running, paused, restarting, removing, exited, dead
	Running    bool
	ExitCode   int
	Error      string
	FinishedAt string
	Revoked    bool
}

// report maps the snapshot to a job report without output or failure detail.
// Container states with no job equivalent pass through as-is and surface as
// an unknown status.
func (s containerSnapshot) report(id string) *job.Report {
	r := &job.Report{ID: id}

	switch {
	case s.Revoked && s.Running:
		// Kill sent, not yet dead.
		r.State = string(job.StatusStarted)
	case s.Revoked:
		r.State = string(job.StatusRevoked)
	case s.Status == "created":
		r.State = string(job.StatusPending)
	case s.Running || s.Status == "running":
		r.State = string(job.StatusStarted)
	case s.Status == "exited" && s.ExitCode == 0:
		r.State = string(job.StatusSuccess)
	case s.Status == "exited", s.Status == "dead":
		r.State = string(job.StatusFailure)
	default:
		r.State = s.Status
	}

	if job.Status(r.State).IsTerminal() {
		if t, err := time.Parse(time.RFC3339Nano, s.FinishedAt); err == nil && !t.IsZero() {
			r.CompletedAt = &t
		}
	}
	return r
}

func failureDetail(s containerSnapshot, stderr string) string {
	detail := fmt.Sprintf("exit status %d", s.ExitCode)
	if s.Error != "" {
		detail += ": " + s.Error
	}
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		detail += "\n\n" + stderr
	}
	return detail
}
