package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xspine"
	"github.com/trickstertwo/xspine/redislog"
)

var (
	// ErrBackpressure rejects an Ingest once the pending buffer crosses
	// the configured threshold. The event was not buffered.
	ErrBackpressure = errors.New("pipeline: backpressure active")

	// ErrReplayDisabled is returned by Replay when replay is turned off.
	ErrReplayDisabled = errors.New("pipeline: replay disabled")
)

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(c xspine.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// Pipeline moves events between producers, the bus and the durable log.
type Pipeline struct {
	cfg    Config
	bus    *xspine.Bus
	log    *redislog.Log
	logger *xlog.Logger
	clock  xspine.Clock

	mu      sync.Mutex // guards start/stop transitions
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subs    []*xspine.Subscription

	pmu          sync.Mutex // guards pending and pendingCount
	pending      map[xspine.EventType][]xspine.Event
	pendingCount int

	counters     counters
	startedAt    time.Time
	stoppedAfter atomic.Int64 // uptime at the last Stop, in nanoseconds
}

// New builds a stopped Pipeline on top of an existing bus and log. The log
// may be nil when persistence and replay are both disabled.
func New(bus *xspine.Bus, log *redislog.Log, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		log:     log,
		logger:  xlog.Default(),
		clock:   xclock.Default(),
		pending: make(map[xspine.EventType][]xspine.Event, len(xspine.Topics())),
	}
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}
	return p
}

// Running reports whether Start has completed and Stop has not.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Start brings the pipeline up: the bus if it is not already running, the
// log connection (with retry) and streams when persistence is enabled, the
// outbound persistence handler on every topic, and the background loops.
// Idempotent.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return nil
	}

	if !p.bus.Running() {
		p.bus.Start(ctx)
	}

	if p.cfg.EnablePersistence || p.cfg.EnableReplay {
		if p.log == nil {
			return fmt.Errorf("pipeline: persistence or replay enabled without a log")
		}
		if !p.log.Connected() {
			if err := p.log.ConnectWithRetry(ctx, p.cfg.ConnectRetries, p.cfg.ConnectBaseDelay); err != nil {
				return err
			}
		}
	}
	if p.cfg.EnablePersistence {
		if err := p.log.CreateStreams(ctx); err != nil {
			return err
		}
		for _, topic := range xspine.Topics() {
			sub, err := p.bus.Subscribe(topic, p.persistEvent, xspine.PriorityNormal)
			if err != nil {
				return err
			}
			p.subs = append(p.subs, sub)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.startedAt = p.clock.Now()
	p.running.Store(true)

	p.wg.Add(1)
	go p.ingestionLoop(loopCtx)
	if p.cfg.EnablePersistence {
		p.wg.Add(1)
		go p.recoveryLoop(loopCtx)
	}

	p.logger.Info().
		Bool("persistence", p.cfg.EnablePersistence).
		Bool("replay", p.cfg.EnableReplay).
		Dur("interval", p.cfg.Interval).
		Msg("pipeline started")
	return nil
}

// Stop halts the loops, flushes the pending buffer to the bus best-effort,
// removes the outbound handler and clears state. Idempotent; safe to call
// from a different goroutine than Start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Swap(false) {
		return
	}
	p.stoppedAfter.Store(int64(p.clock.Since(p.startedAt)))

	p.cancel()
	p.wg.Wait()

	flushed, dropped := p.flushPending()

	for _, sub := range p.subs {
		sub.Close()
	}
	p.subs = nil

	p.logger.Info().
		Int("flushed", flushed).
		Int("dropped", dropped).
		Msg("pipeline stopped")
}

// Ingest admits an event into the pending buffer for later publication.
// Admission is checked against the backpressure threshold before the event
// is buffered, so the call that first reaches the threshold is still
// admitted and only the next one is rejected.
func (p *Pipeline) Ingest(ev xspine.Event) error {
	if !p.running.Load() {
		return xspine.ErrNotRunning
	}
	if !ev.Type.Valid() {
		return xspine.UnknownEventTypeError{Type: string(ev.Type)}
	}

	p.pmu.Lock()
	ratio := float64(p.pendingCount) / float64(p.cfg.MaxPendingEvents)
	if ratio >= p.cfg.BackpressureThreshold {
		p.pmu.Unlock()
		p.counters.backpressure.Add(1)
		p.logger.Warn().
			Str("topic", string(ev.Type)).
			Float64("ratio", ratio).
			Msg("ingest rejected")
		return fmt.Errorf("%s: %w", ev.Type, ErrBackpressure)
	}
	p.pending[ev.Type] = append(p.pending[ev.Type], ev)
	p.pendingCount++
	p.pmu.Unlock()

	p.counters.ingested.Add(1)
	p.counters.touch(p.clock.Now())
	return nil
}

// Replay returns persisted events for a topic within [from, to] in
// ascending log-ID order, bypassing the bus. Fails fast when replay is
// disabled or the log is disconnected.
func (p *Pipeline) Replay(ctx context.Context, topic xspine.EventType, from, to time.Time, count int64) ([]xspine.Event, error) {
	if !p.cfg.EnableReplay {
		return nil, ErrReplayDisabled
	}
	if p.log == nil || !p.log.Connected() {
		return nil, redislog.ErrNotConnected
	}

	entries, err := p.log.Replay(ctx, topic, from, to, count)
	if err != nil {
		return nil, err
	}
	events := make([]xspine.Event, len(entries))
	for i, e := range entries {
		events[i] = e.Event
	}
	return events, nil
}

// Metrics returns a snapshot of pipeline counters.
func (p *Pipeline) Metrics() Metrics {
	p.pmu.Lock()
	pending := p.pendingCount
	p.pmu.Unlock()

	// After Stop the last run's uptime keeps reporting, so throughput
	// numbers stay meaningful.
	uptime := time.Duration(p.stoppedAfter.Load())
	if p.running.Load() {
		uptime = p.clock.Since(p.startedAt)
	}
	return p.counters.snapshot(pending, uptime)
}

// persistEvent is the outbound handler the pipeline subscribes on every
// topic. Write failures are logged and swallowed so a log outage never
// breaks bus dispatch.
func (p *Pipeline) persistEvent(ctx context.Context, ev xspine.Event) error {
	if _, err := p.log.Publish(ctx, ev); err != nil {
		p.counters.failed.Add(1)
		p.logger.Error().
			Str("topic", string(ev.Type)).
			Str("event_id", ev.ID).
			Err(err).
			Msg("persist failed")
		return nil
	}
	p.counters.persisted.Add(1)
	return nil
}

// ingestionLoop periodically republishes unacknowledged log entries and
// drains the pending buffer onto the bus.
func (p *Pipeline) ingestionLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.cfg.EnablePersistence {
			p.consumeLog(ctx)
		}
		p.drainPending()
	}
}

// consumeLog moves one batch of unacknowledged log entries to the bus.
// Entries already dispatched live are suppressed by the bus's idempotency
// window and acknowledged without a second dispatch; a failed publish
// leaves the entry pending for redelivery.
func (p *Pipeline) consumeLog(ctx context.Context) {
	entries, err := p.log.Consume(ctx, nil, int64(p.cfg.BatchSize))
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("log consume failed")
		}
		return
	}

	for _, entry := range entries {
		if err := p.bus.Publish(entry.Event); err != nil {
			p.counters.failed.Add(1)
			p.logger.Warn().
				Str("topic", string(entry.Event.Type)).
				Str("message_id", entry.MessageID).
				Err(err).
				Msg("republish failed")
			continue
		}
		if err := p.log.Ack(ctx, entry.Event.Type, entry.MessageID); err != nil {
			p.logger.Warn().
				Str("message_id", entry.MessageID).
				Err(err).
				Msg("ack failed")
			continue
		}
		p.counters.processed.Add(1)
		p.counters.touch(p.clock.Now())
	}
}

// drainPending publishes one batch per topic from the pending buffer.
// Publish failures are counted and the event is dropped, never re-buffered.
func (p *Pipeline) drainPending() {
	batches := p.takeBatches()
	if len(batches) == 0 {
		return
	}

	for _, batch := range batches {
		for _, ev := range batch {
			started := p.clock.Now()
			if err := p.bus.Publish(ev); err != nil {
				p.counters.failed.Add(1)
				p.logger.Warn().
					Str("topic", string(ev.Type)).
					Str("event_id", ev.ID).
					Err(err).
					Msg("publish from buffer failed")
				continue
			}
			p.counters.processed.Add(1)
			p.counters.processingNs.Add(int64(p.clock.Since(started)))
			p.counters.touch(p.clock.Now())
		}
	}
}

// takeBatches removes up to BatchSize events per topic from the buffer.
func (p *Pipeline) takeBatches() [][]xspine.Event {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if p.pendingCount == 0 {
		return nil
	}

	var batches [][]xspine.Event
	for topic, buf := range p.pending {
		if len(buf) == 0 {
			continue
		}
		n := p.cfg.BatchSize
		if n > len(buf) {
			n = len(buf)
		}
		batch := make([]xspine.Event, n)
		copy(batch, buf[:n])
		p.pending[topic] = buf[n:]
		p.pendingCount -= n
		batches = append(batches, batch)
	}
	return batches
}

// flushPending empties the whole buffer to the bus during Stop.
func (p *Pipeline) flushPending() (flushed, dropped int) {
	p.pmu.Lock()
	remaining := p.pending
	p.pending = make(map[xspine.EventType][]xspine.Event, len(xspine.Topics()))
	p.pendingCount = 0
	p.pmu.Unlock()

	for _, buf := range remaining {
		for _, ev := range buf {
			if err := p.bus.Publish(ev); err != nil {
				p.counters.failed.Add(1)
				dropped++
				continue
			}
			p.counters.processed.Add(1)
			flushed++
		}
	}
	return flushed, dropped
}

// recoveryLoop reclaims log entries that another consumer read but never
// acknowledged, republishing them so at-least-once delivery holds across
// consumer crashes.
func (p *Pipeline) recoveryLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ClaimMinIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, topic := range xspine.Topics() {
			entries, err := p.log.ClaimStale(ctx, topic, p.cfg.ClaimMinIdle, int64(p.cfg.BatchSize))
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn().Str("topic", string(topic)).Err(err).Msg("claim failed")
				}
				continue
			}
			for _, entry := range entries {
				if err := p.bus.Publish(entry.Event); err != nil {
					p.counters.failed.Add(1)
					continue
				}
				if err := p.log.Ack(ctx, topic, entry.MessageID); err != nil {
					continue
				}
				p.counters.processed.Add(1)
			}
		}
	}
}
