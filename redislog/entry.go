package redislog

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xspine"
)

// Entry is one durable log record: the decoded event plus the Redis
// stream message ID needed to acknowledge it.
type Entry struct {
	Event     xspine.Event
	MessageID string
}

// decodeEntry rebuilds an Entry from raw stream message values. The
// event_data field carries the full flat-JSON event; event_type and
// timestamp are denormalized alongside it for stream-level inspection.
func decodeEntry(msg redis.XMessage) (Entry, error) {
	raw, ok := msg.Values[fieldEventData]
	if !ok {
		return Entry{}, fmt.Errorf("redislog: message %s: missing %s field", msg.ID, fieldEventData)
	}
	data, ok := raw.(string)
	if !ok {
		return Entry{}, fmt.Errorf("redislog: message %s: %s is not a string", msg.ID, fieldEventData)
	}

	var ev xspine.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return Entry{}, fmt.Errorf("redislog: message %s: %w", msg.ID, err)
	}
	return Entry{Event: ev, MessageID: msg.ID}, nil
}
