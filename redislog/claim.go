package redislog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xspine"
)

// ClaimStale reassigns pending entries that another consumer read but left
// unacknowledged for at least minIdle. Claimed entries are redelivered here
// as full records so the caller can process and acknowledge them.
func (l *Log) ClaimStale(ctx context.Context, topic xspine.EventType, minIdle time.Duration, count int64) ([]Entry, error) {
	if !l.connected.Load() {
		return nil, ErrNotConnected
	}

	stream := l.cfg.StreamName(topic)
	pending, err := l.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  l.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redislog: pending %s: %w", stream, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	msgs, err := l.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    l.cfg.Group,
		Consumer: l.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redislog: claim %s: %w", stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entry, err := decodeEntry(msg)
		if err != nil {
			l.logger.Warn().
				Str("stream", stream).
				Str("message_id", msg.ID).
				Err(err).
				Msg("skipping malformed claimed entry")
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) > 0 {
		l.logger.Info().
			Str("stream", stream).
			Int("claimed", len(entries)).
			Msg("claimed stale entries")
	}
	return entries, nil
}
