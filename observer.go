package xspine

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// BusEventType enumerates internal lifecycle events for the Observer pattern.
type BusEventType string

const (
	Published      BusEventType = "published"
	Duplicate      BusEventType = "duplicate"
	Rejected       BusEventType = "rejected"
	DispatchDone   BusEventType = "dispatch_done"
	HandlerFailure BusEventType = "handler_failure"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type     BusEventType
	Topic    EventType
	EventID  string
	Duration time.Duration
	Err      error

	// Internal: attached for async dispatch
	observers []Observer
}

// Observer receives bus lifecycle events. Implementations should be
// non-blocking; slow observers are decoupled by the ObserverPool.
type Observer interface {
	OnBusEvent(e BusEvent)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnBusEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits bus lifecycle events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnBusEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("topic", string(e.Topic)),
		xlog.Str("event_id", e.EventID),
	)
	switch e.Type {
	case HandlerFailure, Rejected:
		ev.Warn().Err(e.Err).Msg("xspine bus event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("xspine bus event")
	}
}
