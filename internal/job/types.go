package job

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

// Status values. The strings are the task queue wire vocabulary.
const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusRevoked Status = "REVOKED"
)

// ParseStatus maps a queue-native state string onto Status. Unrecognized
// strings are an error; they are never coerced to a default.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusStarted, StatusSuccess, StatusFailure, StatusRevoked:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// IsTerminal reports whether no further transitions can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Report is what a Queue knows about one job.
type Report struct {
	ID            string
	State         string     // queue-native status string, see ParseStatus
	CompletedAt   *time.Time // set once the job reached a terminal state
	Output        string     // result text, SUCCESS only
	FailureDetail string     // diagnostic trace, FAILURE only
}

// Info is the externally visible view of a job.
type Info struct {
	ID     string     `json:"id"`
	Status Status     `json:"status"`
	Date   *time.Time `json:"date"` // completion time, null until terminal
}

func newInfo(r *Report, s Status) *Info {
	info := &Info{ID: r.ID, Status: s}
	if s.IsTerminal() && r.CompletedAt != nil {
		date := r.CompletedAt.UTC()
		info.Date = &date
	}
	return info
}
