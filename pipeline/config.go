package pipeline

import (
	"fmt"
	"time"
)

// Config tunes pipeline admission, batching and persistence.
type Config struct {
	// BatchSize bounds how many events one loop cycle moves per topic,
	// both when draining the pending buffer and when consuming the log.
	BatchSize int

	// MaxPendingEvents caps the pending buffer across all topics.
	MaxPendingEvents int

	// BackpressureThreshold is the pending/max ratio at or above which
	// Ingest rejects. Checked before the event is buffered, so the call
	// that first reaches the threshold is still admitted.
	BackpressureThreshold float64

	// Interval is the sleep between ingestion-loop cycles.
	Interval time.Duration

	// EnablePersistence wires the durable log: outbound persistence of
	// every dispatched event plus log consumption and recovery.
	EnablePersistence bool

	// EnableReplay allows Replay; disabled replay fails fast.
	EnableReplay bool

	// ClaimMinIdle is how long a consumed-but-unacknowledged log entry
	// may sit before the recovery loop claims it from its dead consumer.
	ClaimMinIdle time.Duration

	// Connection retry policy used by Start when persistence is enabled.
	ConnectRetries   int
	ConnectBaseDelay time.Duration
}

// Defaults returns the standard pipeline tuning.
func Defaults() Config {
	return Config{
		BatchSize:             10,
		MaxPendingEvents:      1000,
		BackpressureThreshold: 0.8,
		Interval:              100 * time.Millisecond,
		EnablePersistence:     true,
		EnableReplay:          true,
		ClaimMinIdle:          30 * time.Second,
		ConnectRetries:        5,
		ConnectBaseDelay:      500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := Defaults()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxPendingEvents <= 0 {
		c.MaxPendingEvents = d.MaxPendingEvents
	}
	if c.BackpressureThreshold <= 0 || c.BackpressureThreshold > 1 {
		c.BackpressureThreshold = d.BackpressureThreshold
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = d.ClaimMinIdle
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = d.ConnectRetries
	}
	if c.ConnectBaseDelay <= 0 {
		c.ConnectBaseDelay = d.ConnectBaseDelay
	}
	return c
}

// Validate checks Config for consistency.
func (c Config) Validate() error {
	if c.BackpressureThreshold < 0 || c.BackpressureThreshold > 1 {
		return fmt.Errorf("config: backpressure_threshold must be in [0,1], got %v", c.BackpressureThreshold)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("config: batch_size must be >= 0, got %d", c.BatchSize)
	}
	if c.MaxPendingEvents < 0 {
		return fmt.Errorf("config: max_pending_events must be >= 0, got %d", c.MaxPendingEvents)
	}
	return nil
}
