package redislog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xspine"
)

// Publish appends the event to its topic stream and returns the assigned
// stream message ID. Streams are trimmed approximately to the configured
// maximum length on every append.
func (l *Log) Publish(ctx context.Context, ev xspine.Event) (string, error) {
	if !l.connected.Load() {
		return "", ErrNotConnected
	}
	if !ev.Type.Valid() {
		return "", xspine.UnknownEventTypeError{Type: string(ev.Type)}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("redislog: encode %s: %w", ev.ID, err)
	}

	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.cfg.StreamName(ev.Type),
		MaxLen: l.cfg.MaxLenApprox,
		Approx: true,
		Values: map[string]interface{}{
			fieldEventType: string(ev.Type),
			fieldEventData: string(data),
			fieldTimestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redislog: append %s: %w", ev.Type, err)
	}

	l.logger.Debug().
		Str("topic", string(ev.Type)).
		Str("event_id", ev.ID).
		Str("message_id", id).
		Msg("appended event")
	return id, nil
}

// Ack acknowledges a consumed message for the configured consumer group,
// removing it from the pending entries list.
func (l *Log) Ack(ctx context.Context, topic xspine.EventType, messageID string) error {
	if !l.connected.Load() {
		return ErrNotConnected
	}
	if err := l.client.XAck(ctx, l.cfg.StreamName(topic), l.cfg.Group, messageID).Err(); err != nil {
		return fmt.Errorf("redislog: ack %s on %s: %w", messageID, topic, err)
	}
	return nil
}
