package xspine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xlog"
)

// Priority orders handlers within a topic. Lower values run first; ties are
// broken by registration order.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Config controls bus sizing. Zero values pick the defaults.
type Config struct {
	// MaxQueueSize bounds each topic queue (default 1000). A publish onto a
	// full queue fails fast with ErrQueueFull.
	MaxQueueSize int
	// IdempotencyWindow is how long a seen event ID suppresses duplicates
	// (default 300s).
	IdempotencyWindow time.Duration
	// ObserverWorkers and ObserverBuffer size the async observer pool.
	ObserverWorkers int
	ObserverBuffer  int
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = 300 * time.Second
	}
	if c.ObserverWorkers <= 0 {
		c.ObserverWorkers = 2
	}
	if c.ObserverBuffer <= 0 {
		c.ObserverBuffer = 1024
	}
	return c
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock injects a custom clock.
func WithClock(c Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithMiddleware wraps every subscribed handler with the given middlewares.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *Bus) { b.middlewares = append(b.middlewares, mw...) }
}

// WithObserver attaches observers for bus lifecycle events.
func WithObserver(obs ...Observer) Option {
	return func(b *Bus) {
		for _, o := range obs {
			if o != nil {
				b.observers = append(b.observers, o)
			}
		}
	}
}

type registration struct {
	id       uint64
	priority Priority
	handler  Handler
}

// Subscription identifies one handler registration. Closing it removes the
// registration; closing twice is a no-op.
type Subscription struct {
	bus   *Bus
	topic EventType
	id    uint64
	once  sync.Once
}

// Topic returns the topic this subscription is bound to.
func (s *Subscription) Topic() EventType { return s.topic }

// Close removes the registration from the bus.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s.topic, s.id) })
}

// Bus is the in-process event dispatcher: one bounded queue and one worker
// goroutine per topic, priority-ordered handlers, an idempotency window for
// duplicate suppression, and per-topic metrics.
//
// Exactly one worker consumes each topic queue, so dispatch within a topic
// is strict FIFO with serialized handler execution. Topics run concurrently
// with respect to each other.
type Bus struct {
	cfg         Config
	clock       Clock
	logger      *xlog.Logger
	middlewares []Middleware

	regMu  sync.RWMutex
	regs   map[EventType][]registration
	regSeq atomic.Uint64

	window  *seenWindow
	metrics map[EventType]*topicMetrics

	mu      sync.Mutex // guards start/stop transitions
	qmu     sync.RWMutex
	queues  map[EventType]chan Event
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	pool    atomic.Pointer[ObserverPool]

	observersMu sync.RWMutex
	observers   []Observer
}

// New builds a stopped Bus. Call Start before publishing.
func New(cfg Config, opts ...Option) *Bus {
	b := &Bus{
		cfg:     cfg.withDefaults(),
		clock:   defaultClock(),
		logger:  xlog.Default(),
		regs:    make(map[EventType][]registration),
		metrics: make(map[EventType]*topicMetrics),
	}
	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}
	b.window = newSeenWindow(b.cfg.IdempotencyWindow, b.clock)
	for _, t := range Topics() {
		b.metrics[t] = &topicMetrics{}
	}
	return b
}

// Running reports whether Start has completed and Stop has not.
func (b *Bus) Running() bool { return b.running.Load() }

// Start allocates the topic queues and launches one worker per topic.
// Idempotent: a second Start while running is a no-op.
//
// Worker lifetime is bound to Stop, not to ctx: cancelling the caller's
// context must not leave a running bus with nobody draining the queues.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return
	}

	wctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.pool.Store(NewObserverPool(wctx, b.cfg.ObserverWorkers, b.cfg.ObserverBuffer))

	queues := make(map[EventType]chan Event, len(b.metrics))
	for _, t := range Topics() {
		q := make(chan Event, b.cfg.MaxQueueSize)
		queues[t] = q
		b.wg.Add(1)
		go b.worker(wctx, t, q)
	}

	b.qmu.Lock()
	b.queues = queues
	b.qmu.Unlock()

	b.running.Store(true)
	b.logger.Info().Int("max_queue_size", b.cfg.MaxQueueSize).Msg("bus started")
}

// Stop signals the workers, joins them and drops the queues. Queued but
// undispatched events are discarded; the durable log is the safety net.
// Idempotent and safe to call from a different goroutine than Start.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Load() {
		return
	}
	b.running.Store(false)

	b.cancel()
	b.wg.Wait()

	b.qmu.Lock()
	b.queues = nil
	b.qmu.Unlock()

	if pool := b.pool.Swap(nil); pool != nil {
		_ = pool.Close(5 * time.Second)
	}

	b.logger.Info().Msg("bus stopped")
}

// Publish routes an event onto its topic queue without blocking.
//
// Returns ErrNotRunning when stopped and ErrQueueFull when the topic queue
// is saturated; the caller owns any retry. A duplicate ID inside the
// idempotency window is counted and silently dropped (nil error). The ID is
// recorded before the enqueue attempt, so a retry of a queue-full rejection
// within the window is treated as a duplicate.
func (b *Bus) Publish(ev Event) error {
	if !b.running.Load() {
		return ErrNotRunning
	}
	if !ev.Type.Valid() {
		return UnknownEventTypeError{Type: string(ev.Type)}
	}

	m := b.metrics[ev.Type]
	if b.window.observe(ev.ID) {
		m.duplicated.Add(1)
		b.notify(BusEvent{Type: Duplicate, Topic: ev.Type, EventID: ev.ID})
		b.logger.Debug().Str("topic", string(ev.Type)).Str("event_id", ev.ID).Msg("duplicate event ignored")
		return nil
	}

	b.qmu.RLock()
	q := b.queues[ev.Type]
	b.qmu.RUnlock()
	if q == nil {
		return ErrNotRunning
	}

	select {
	case q <- ev:
		m.published.Add(1)
		b.notify(BusEvent{Type: Published, Topic: ev.Type, EventID: ev.ID})
		return nil
	default:
		b.notify(BusEvent{Type: Rejected, Topic: ev.Type, EventID: ev.ID, Err: ErrQueueFull})
		b.logger.Warn().Str("topic", string(ev.Type)).Str("event_id", ev.ID).Msg("topic queue full")
		return fmt.Errorf("%s: %w", ev.Type, ErrQueueFull)
	}
}

// Subscribe registers a handler for a topic. Registering the same handler
// twice creates two entries; each returned Subscription removes its own.
func (b *Bus) Subscribe(topic EventType, h Handler, p Priority) (*Subscription, error) {
	if !topic.Valid() {
		return nil, UnknownEventTypeError{Type: string(topic)}
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	if p != PriorityHigh && p != PriorityNormal && p != PriorityLow {
		p = PriorityNormal
	}

	reg := registration{
		id:       b.regSeq.Add(1),
		priority: p,
		handler:  Chain(RecoveryMiddleware()(h), b.middlewares...),
	}

	b.regMu.Lock()
	cur := b.regs[topic]
	next := make([]registration, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, reg)
	// Stable by priority: insertion order breaks ties.
	sort.SliceStable(next, func(i, j int) bool { return next[i].priority < next[j].priority })
	b.regs[topic] = next
	b.regMu.Unlock()

	b.logger.Debug().Str("topic", string(topic)).Str("priority", p.String()).Msg("handler subscribed")
	return &Subscription{bus: b, topic: topic, id: reg.id}, nil
}

// Unsubscribe removes a subscription. No-op when already removed or nil.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s != nil {
		s.Close()
	}
}

func (b *Bus) remove(topic EventType, id uint64) {
	b.regMu.Lock()
	defer b.regMu.Unlock()

	cur := b.regs[topic]
	next := make([]registration, 0, len(cur))
	for _, r := range cur {
		if r.id != id {
			next = append(next, r)
		}
	}
	b.regs[topic] = next
}

// handlers returns the current snapshot for a topic. The slice is replaced
// wholesale on every mutation, so readers never observe a partial update.
func (b *Bus) handlers(topic EventType) []registration {
	b.regMu.RLock()
	defer b.regMu.RUnlock()
	return b.regs[topic]
}

func (b *Bus) worker(ctx context.Context, topic EventType, q chan Event) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q:
			b.dispatch(ctx, topic, ev)
		}
	}
}

// dispatch runs the handler snapshot in priority order. A failing handler is
// logged and counted; it never stops the remaining handlers or the worker.
func (b *Bus) dispatch(ctx context.Context, topic EventType, ev Event) {
	regs := b.handlers(topic)
	start := b.clock.Now()

	for _, r := range regs {
		if err := r.handler(ctx, ev); err != nil {
			b.metrics[topic].failed.Add(1)
			b.notify(BusEvent{Type: HandlerFailure, Topic: topic, EventID: ev.ID, Err: err})
			b.logger.Error().
				Str("topic", string(topic)).
				Str("event_id", ev.ID).
				Err(err).
				Msg("handler failed")
		}
	}

	d := b.clock.Since(start)
	b.metrics[topic].recordDispatch(d, b.clock.Now())
	b.notify(BusEvent{Type: DispatchDone, Topic: topic, EventID: ev.ID, Duration: d})
}

// Metrics returns a per-topic counter snapshot.
func (b *Bus) Metrics() map[EventType]TopicMetrics {
	b.qmu.RLock()
	queues := b.queues
	b.qmu.RUnlock()

	out := make(map[EventType]TopicMetrics, len(b.metrics))
	for t, m := range b.metrics {
		depth := 0
		if q, ok := queues[t]; ok {
			depth = len(q)
		}
		out[t] = m.snapshot(depth)
	}
	return out
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notify dispatches lifecycle events asynchronously (non-blocking).
func (b *Bus) notify(e BusEvent) {
	pool := b.pool.Load()
	if pool == nil {
		return
	}

	b.observersMu.RLock()
	if len(b.observers) == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	pool.Notify(e, observers)
}
