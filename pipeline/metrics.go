package pipeline

import (
	"sync/atomic"
	"time"
)

// counters is the pipeline's hot-path instrumentation. Plain atomics so
// Ingest and the loops never contend on a lock for bookkeeping.
type counters struct {
	ingested     atomic.Uint64
	processed    atomic.Uint64
	failed       atomic.Uint64
	persisted    atomic.Uint64
	backpressure atomic.Uint64
	processingNs atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

func (c *counters) touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

// Metrics is a point-in-time snapshot of pipeline activity.
type Metrics struct {
	Ingested            uint64
	Processed           uint64
	Failed              uint64
	Persisted           uint64
	BackpressureEvents  uint64
	PendingEvents       int
	UptimeSeconds       float64
	EventsPerSecond     float64
	AvgProcessingTimeMs float64
	LastActivity        time.Time
}

func (c *counters) snapshot(pending int, uptime time.Duration) Metrics {
	m := Metrics{
		Ingested:           c.ingested.Load(),
		Processed:          c.processed.Load(),
		Failed:             c.failed.Load(),
		Persisted:          c.persisted.Load(),
		BackpressureEvents: c.backpressure.Load(),
		PendingEvents:      pending,
		UptimeSeconds:      uptime.Seconds(),
	}
	if s := uptime.Seconds(); s > 0 {
		m.EventsPerSecond = float64(m.Processed) / s
	}
	if m.Processed > 0 {
		m.AvgProcessingTimeMs = float64(c.processingNs.Load()) / float64(m.Processed) / 1e6
	}
	if ns := c.lastActivity.Load(); ns > 0 {
		m.LastActivity = time.Unix(0, ns)
	}
	return m
}
