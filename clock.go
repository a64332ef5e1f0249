package xspine

import (
	"time"

	"github.com/trickstertwo/xclock"
)

// Clock abstracts time for the bus, the idempotency window and the pipeline
// so tests can advance it manually. The default delegates to xclock.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

func defaultClock() Clock { return xclock.Default() }
