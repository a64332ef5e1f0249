package redislog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xspine"
)

// ErrNotConnected is returned by every operation while the log is
// disconnected. Connection-level failures are fatal to the caller of
// Connect; per-operation failures propagate and the pipeline decides.
var ErrNotConnected = errors.New("redislog: not connected")

// Log is the durable append log: one Redis stream per topic with a single
// consumer group for the pipeline.
type Log struct {
	cfg    Config
	logger *xlog.Logger

	client    *redis.Client
	connected atomic.Bool
}

// Option configures a Log at construction.
type Option func(*Log)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(lg *Log) {
		if l != nil {
			lg.logger = l
		}
	}
}

// New builds a disconnected Log. Call Connect or ConnectWithRetry before use.
func New(cfg Config, opts ...Option) *Log {
	l := &Log{
		cfg:    cfg,
		logger: xlog.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(l)
		}
	}
	return l
}

// Connected reports whether Connect has succeeded and Close has not run.
func (l *Log) Connected() bool { return l.connected.Load() }

// Connect establishes and verifies the Redis connection.
func (l *Log) Connect(ctx context.Context) error {
	if err := l.cfg.Validate(); err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     l.cfg.Addr,
		Username: l.cfg.Username,
		Password: l.cfg.Password,
		DB:       l.cfg.DB,
	})
	if err := ping(ctx, client); err != nil {
		_ = client.Close()
		return fmt.Errorf("redislog: connect %s: %w", l.cfg.Addr, err)
	}

	l.client = client
	l.connected.Store(true)
	l.logger.Info().Str("addr", l.cfg.Addr).Str("group", l.cfg.Group).Msg("connected to redis")
	return nil
}

// ConnectWithRetry retries Connect with exponential backoff
// (baseDelay * 2^attempt). After exhausting the retries it surfaces the
// last connection error.
func (l *Log) ConnectWithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = l.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		delay := baseDelay << uint(attempt)
		l.logger.Warn().
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Err(lastErr).
			Msg("redis connection failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("redislog: connect failed after %d retries: %w", maxRetries, lastErr)
}

// CreateStreams creates the stream and consumer group for every topic,
// reading the group from the beginning of the log. A group that already
// exists is fine; any other failure is fatal.
func (l *Log) CreateStreams(ctx context.Context) error {
	if !l.connected.Load() {
		return ErrNotConnected
	}

	for _, t := range xspine.Topics() {
		stream := l.cfg.StreamName(t)
		err := l.client.XGroupCreateMkStream(ctx, stream, l.cfg.Group, "0").Err()
		if err != nil {
			if strings.Contains(err.Error(), "BUSYGROUP") {
				l.logger.Debug().Str("stream", stream).Msg("consumer group already exists")
				continue
			}
			return fmt.Errorf("redislog: create stream %s: %w", stream, err)
		}
		l.logger.Info().Str("stream", stream).Str("group", l.cfg.Group).Msg("created stream")
	}
	return nil
}

// Close releases the Redis connection. Idempotent.
func (l *Log) Close() error {
	if !l.connected.Swap(false) {
		return nil
	}
	err := l.client.Close()
	l.logger.Info().Msg("closed redis connection")
	return err
}

func ping(ctx context.Context, c *redis.Client) error {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := c.Ping(pctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
