package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"cockpit/internal/dispatcher"
	"cockpit/internal/state"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*dispatcher.Event
}

func (d *recordingDispatcher) Dispatch(e *dispatcher.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Stats() dispatcher.Stats { return dispatcher.Stats{} }

func (d *recordingDispatcher) Close(context.Context) error { return nil }

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Payload.Type)
	}
	return out
}

func TestFilteredEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		eventType string
		filter    []string
		want      bool
	}{
		{"empty filter allows all", EventTypeAdmitted, nil, true},
		{"listed type", EventTypeRevoked, []string{EventTypeRevoked}, true},
		{"unlisted type", EventTypeFinished, []string{EventTypeAdmitted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FilteredEvents(tt.eventType, tt.filter); got != tt.want {
				t.Errorf("FilteredEvents(%q, %v) = %v, want %v", tt.eventType, tt.filter, got, tt.want)
			}
		})
	}
}

func TestEventBuilder_FinishedEvent(t *testing.T) {
	t.Parallel()
	done := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	e := NewEventBuilder("j1", "cockpit").BuildFinishedEvent(StatusFailure, &done, "boom")

	if e.Type != EventTypeFinished {
		t.Errorf("type = %q", e.Type)
	}
	if e.Subject != "j1" || e.Source != "cockpit" {
		t.Errorf("subject/source = %q/%q", e.Subject, e.Source)
	}
	if e.Data["status"] != StatusFailure || e.Data["error"] != "boom" {
		t.Errorf("unexpected data: %v", e.Data)
	}
	if date, ok := e.Data["date"].(time.Time); !ok || !date.Equal(done) {
		t.Errorf("date = %v, want %v", e.Data["date"], done)
	}
}

func TestNewNotifier_DisabledWithoutURL(t *testing.T) {
	t.Parallel()
	if n := NewNotifier(&recordingDispatcher{}, NotifierConfig{}); n != nil {
		t.Fatal("expected nil notifier without URL")
	}
	// A nil notifier is safe to use.
	var n *Notifier
	n.Admitted("j1")
	n.Revoked("j1", StatusRevoked)
	n.Finished(&Report{ID: "j1", State: "SUCCESS"})
}

func TestNotifier_LifecycleEvents(t *testing.T) {
	t.Parallel()
	d := &recordingDispatcher{}
	notifier := NewNotifier(d, NotifierConfig{URL: "http://hooks.local/cockpit", Key: "secret"})
	queue := newFakeQueue()
	c := NewCoordinator(queue, state.NewMemoryStore(), Options{Notifier: notifier})
	ctx := context.Background()

	info, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Cancel(ctx, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	report, _ := queue.Query(ctx, info.ID)
	notifier.Finished(report)
	notifier.Finished(&Report{ID: "other", State: "STARTED"})

	got := d.types()
	want := []string{EventTypeAdmitted, EventTypeRevoked, EventTypeFinished}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, e := range d.events {
		if e.Destination != "http://hooks.local/cockpit" || e.SigningKey != "secret" {
			t.Errorf("event routed to %q with key %q", e.Destination, e.SigningKey)
		}
	}
}

func TestNotifier_RespectsFilter(t *testing.T) {
	t.Parallel()
	d := &recordingDispatcher{}
	n := NewNotifier(d, NotifierConfig{URL: "http://hooks.local", Events: []string{EventTypeFinished}})

	n.Admitted("j1")
	n.Finished(&Report{ID: "j1", State: "SUCCESS"})

	if got := d.types(); len(got) != 1 || got[0] != EventTypeFinished {
		t.Errorf("events = %v, want only %s", got, EventTypeFinished)
	}
}
