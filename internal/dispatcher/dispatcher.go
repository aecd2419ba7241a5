// Package dispatcher delivers job lifecycle webhooks asynchronously, so a
// slow or failing receiver never delays an API response.
package dispatcher

import (
	"context"
	"errors"

	"cockpit/pkg/cloudevent"
)

var (
	// ErrBufferFull is returned when the buffer is full and the event is dropped.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher handles async delivery of events.
type Dispatcher interface {
	// Dispatch queues an event for delivery without blocking.
	Dispatch(event *Event) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close stops accepting events and delivers what is queued until the
	// context is done.
	Close(ctx context.Context) error
}

// Event is an event to be delivered to a destination.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string // callback URL
	SigningKey  string // HMAC key, empty = unsigned

	requeues int
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64 // failed after retries
	Dropped      int64 // buffer full or max requeues
	Requeued     int64 // circuit open
	RetriesTotal int64
	BreakersOpen int
}
