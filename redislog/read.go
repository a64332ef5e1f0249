package redislog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xspine"
)

// Consume reads up to count unseen entries per topic for the configured
// consumer group, blocking up to the configured block interval when the
// streams are empty. Entries stay pending until acknowledged with Ack.
//
// Malformed records are logged and skipped so one bad append cannot wedge
// the group; an unknown event type is surfaced because it means a producer
// is ahead of this consumer.
func (l *Log) Consume(ctx context.Context, topics []xspine.EventType, count int64) ([]Entry, error) {
	if !l.connected.Load() {
		return nil, ErrNotConnected
	}
	if len(topics) == 0 {
		topics = xspine.Topics()
	}

	streams := make([]string, 0, len(topics)*2)
	for _, t := range topics {
		streams = append(streams, l.cfg.StreamName(t))
	}
	for range topics {
		streams = append(streams, ">")
	}

	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.cfg.Group,
		Consumer: l.cfg.Consumer,
		Streams:  streams,
		Count:    count,
		Block:    l.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redislog: read group %s: %w", l.cfg.Group, err)
	}

	var entries []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			entry, err := decodeEntry(msg)
			if err != nil {
				var unknown xspine.UnknownEventTypeError
				if errors.As(err, &unknown) {
					return entries, err
				}
				l.logger.Warn().
					Str("stream", stream.Stream).
					Str("message_id", msg.ID).
					Err(err).
					Msg("skipping malformed entry")
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Replay returns up to count historical entries for a topic between from
// and to inclusive, independent of consumer-group state. Boundaries are
// taken at millisecond precision, covering every sequence number within
// the boundary milliseconds.
func (l *Log) Replay(ctx context.Context, topic xspine.EventType, from, to time.Time, count int64) ([]Entry, error) {
	if !l.connected.Load() {
		return nil, ErrNotConnected
	}

	start := fmt.Sprintf("%d-0", from.UnixMilli())
	end := fmt.Sprintf("%d-999", to.UnixMilli())

	msgs, err := l.client.XRangeN(ctx, l.cfg.StreamName(topic), start, end, count).Result()
	if err != nil {
		return nil, fmt.Errorf("redislog: replay %s: %w", topic, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entry, err := decodeEntry(msg)
		if err != nil {
			l.logger.Warn().
				Str("topic", string(topic)).
				Str("message_id", msg.ID).
				Err(err).
				Msg("skipping malformed entry during replay")
			continue
		}
		entries = append(entries, entry)
	}

	l.logger.Debug().
		Str("topic", string(topic)).
		Int("entries", len(entries)).
		Msg("replayed range")
	return entries, nil
}

// StreamInfo describes the current state of one topic stream.
type StreamInfo struct {
	Topic   xspine.EventType
	Stream  string
	Length  int64
	Groups  int64
	FirstID string
	LastID  string
}

// Info reports stream statistics for a topic. A stream that does not
// exist yet reports zero length.
func (l *Log) Info(ctx context.Context, topic xspine.EventType) (StreamInfo, error) {
	if !l.connected.Load() {
		return StreamInfo{}, ErrNotConnected
	}

	stream := l.cfg.StreamName(topic)
	res, err := l.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		if isNoSuchStream(err) {
			return StreamInfo{Topic: topic, Stream: stream}, nil
		}
		return StreamInfo{}, fmt.Errorf("redislog: info %s: %w", stream, err)
	}
	return StreamInfo{
		Topic:   topic,
		Stream:  stream,
		Length:  res.Length,
		Groups:  res.Groups,
		FirstID: res.RecordedFirstEntryID,
		LastID:  res.LastGeneratedID,
	}, nil
}

func isNoSuchStream(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
