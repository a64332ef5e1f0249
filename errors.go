package xspine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned by Publish before Start or after Stop. The
	// pipeline reuses it for Ingest with the same meaning.
	ErrNotRunning = errors.New("xspine: not running")

	// ErrQueueFull is returned when a topic queue is at capacity. The event
	// is not enqueued and the caller decides whether to retry.
	ErrQueueFull = errors.New("xspine: topic queue full")

	// ErrNilHandler is returned by Subscribe when the handler is nil.
	ErrNilHandler = errors.New("xspine: nil handler")
)

// UnknownEventTypeError reports a discriminator outside the closed set of
// event types, typically from a foreign or corrupted log entry.
type UnknownEventTypeError struct {
	Type string
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("xspine: unknown event type %q", e.Type)
}
