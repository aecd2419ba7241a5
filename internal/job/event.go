package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"cockpit/internal/dispatcher"
	"cockpit/pkg/cloudevent"
)

// Event types for job lifecycle callbacks
const (
	EventTypeAdmitted = "cockpit.job.admitted"
	EventTypeRevoked  = "cockpit.job.revoked"
	EventTypeFinished = "cockpit.job.finished"
)

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for job lifecycle events.
type EventBuilder struct {
	source  string
	subject string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(jobID, source string) *EventBuilder {
	return &EventBuilder{
		source:  source,
		subject: jobID,
	}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	eventID := fmt.Sprintf("%s-%d", b.subject, time.Now().UnixNano())
	return cloudevent.New(eventType, b.source, b.subject, eventID, data)
}

// BuildAdmittedEvent creates a job admitted event.
func (b *EventBuilder) BuildAdmittedEvent() *cloudevent.CloudEvent {
	return b.Build(EventTypeAdmitted, map[string]any{
		"jobId":  b.subject,
		"status": StatusPending,
	})
}

// BuildRevokedEvent creates a revoke event carrying the status seen right after the revoke.
func (b *EventBuilder) BuildRevokedEvent(observed Status) *cloudevent.CloudEvent {
	return b.Build(EventTypeRevoked, map[string]any{
		"jobId":  b.subject,
		"status": observed,
	})
}

// BuildFinishedEvent creates a terminal state event.
func (b *EventBuilder) BuildFinishedEvent(status Status, completedAt *time.Time, failureDetail string) *cloudevent.CloudEvent {
	data := map[string]any{
		"jobId":  b.subject,
		"status": status,
	}
	if completedAt != nil {
		data["date"] = completedAt.UTC()
	}
	if failureDetail != "" {
		data["error"] = failureDetail
	}
	return b.Build(EventTypeFinished, data)
}

// Notifier publishes lifecycle events to a callback URL through a dispatcher.
// A nil *Notifier is valid and publishes nothing.
type Notifier struct {
	dispatcher dispatcher.Dispatcher
	url        string
	key        string
	source     string
	events     []string
	logger     *slog.Logger
}

// NotifierConfig addresses the callback receiver.
type NotifierConfig struct {
	URL    string   // callback URL
	Key    string   // HMAC signing key, empty = unsigned
	Source string   // CloudEvent source (default: cockpit)
	Events []string // event type filter, empty = all
}

// NewNotifier returns a Notifier, or nil when cfg.URL is empty.
func NewNotifier(d dispatcher.Dispatcher, cfg NotifierConfig) *Notifier {
	if cfg.URL == "" || d == nil {
		return nil
	}
	if cfg.Source == "" {
		cfg.Source = "cockpit"
	}
	return &Notifier{
		dispatcher: d,
		url:        cfg.URL,
		key:        cfg.Key,
		source:     cfg.Source,
		events:     cfg.Events,
		logger:     slog.With("component", "notifier"),
	}
}

func (n *Notifier) send(event *cloudevent.CloudEvent) {
	if n == nil || !FilteredEvents(event.Type, n.events) {
		return
	}
	err := n.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     event,
		Destination: n.url,
		SigningKey:  n.key,
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, dispatcher.ErrBufferFull) {
			level = slog.LevelWarn
		}
		n.logger.Log(context.Background(), level, "Failed to queue callback", "jobId", event.Subject, "type", event.Type, "error", err)
	}
}

// Admitted publishes cockpit.job.admitted.
func (n *Notifier) Admitted(jobID string) {
	if n == nil {
		return
	}
	n.send(NewEventBuilder(jobID, n.source).BuildAdmittedEvent())
}

// Revoked publishes cockpit.job.revoked.
func (n *Notifier) Revoked(jobID string, observed Status) {
	if n == nil {
		return
	}
	n.send(NewEventBuilder(jobID, n.source).BuildRevokedEvent(observed))
}

// Finished publishes cockpit.job.finished for a report in a terminal state.
// Reports with an unrecognized or non-terminal state are ignored.
func (n *Notifier) Finished(r *Report) {
	if n == nil {
		return
	}
	status, err := ParseStatus(r.State)
	if err != nil || !status.IsTerminal() {
		return
	}
	n.send(NewEventBuilder(r.ID, n.source).BuildFinishedEvent(status, r.CompletedAt, r.FailureDetail))
}
