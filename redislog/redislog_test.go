package redislog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xspine"
)

// liveLog connects a Log against a local Redis, skipping the test when no
// server is reachable. Each test gets its own stream prefix and group so
// runs never interfere.
func liveLog(t *testing.T) (*Log, Config) {
	t.Helper()

	cfg := Defaults()
	cfg.StreamPrefix = fmt.Sprintf("xspinetest:%d", time.Now().UnixNano())
	cfg.Group = "xspine-test"
	cfg.Block = 100 * time.Millisecond

	l := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		cleanupStreams(t, cfg)
		_ = l.Close()
	})
	return l, cfg
}

func cleanupStreams(t *testing.T, cfg Config) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, topic := range xspine.Topics() {
		stream := cfg.StreamName(topic)
		_ = client.XGroupDestroy(ctx, stream, cfg.Group).Err()
		_ = client.Del(ctx, stream).Err()
	}
}

func marketEvent(symbol string, price float64) xspine.Event {
	return xspine.NewEvent(xspine.MarketDataPayload{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(price),
		Volume: decimal.NewFromInt(100),
	})
}

func TestLog_PublishConsumeAck(t *testing.T) {
	l, _ := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	ev := marketEvent("AAPL", 187.25)
	id, err := l.Publish(ctx, ev)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := l.Consume(ctx, []xspine.EventType{xspine.MarketData}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ev.ID, entries[0].Event.ID)
	assert.Equal(t, id, entries[0].MessageID)

	require.NoError(t, l.Ack(ctx, xspine.MarketData, entries[0].MessageID))

	// Acked entries are not redelivered.
	entries, err = l.Consume(ctx, []xspine.EventType{xspine.MarketData}, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_ConsumeAllTopics(t *testing.T) {
	l, _ := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	_, err := l.Publish(ctx, marketEvent("AAPL", 187.25))
	require.NoError(t, err)
	_, err = l.Publish(ctx, xspine.NewEvent(xspine.SignalPayload{
		Symbol:     "AAPL",
		SignalType: xspine.SignalBuy,
		Strength:   decimal.NewFromFloat(0.9),
		StrategyID: "momentum",
	}))
	require.NoError(t, err)

	entries, err := l.Consume(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLog_Replay_Range(t *testing.T) {
	l, _ := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	before := time.Now().Add(-time.Second)
	for i := 0; i < 5; i++ {
		_, err := l.Publish(ctx, marketEvent("MSFT", 400+float64(i)))
		require.NoError(t, err)
	}
	after := time.Now().Add(time.Second)

	entries, err := l.Replay(ctx, xspine.MarketData, before, after, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	// A window ending before the appends sees nothing.
	entries, err = l.Replay(ctx, xspine.MarketData, before.Add(-time.Hour), before, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Replay does not consume: the group still sees everything.
	consumed, err := l.Consume(ctx, []xspine.EventType{xspine.MarketData}, 100)
	require.NoError(t, err)
	assert.Len(t, consumed, 5)
}

func TestLog_Info(t *testing.T) {
	l, cfg := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	// Unknown stream reports zero length instead of an error.
	info, err := l.Info(ctx, xspine.Fill)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Length)

	_, err = l.Publish(ctx, marketEvent("AAPL", 187.25))
	require.NoError(t, err)

	info, err = l.Info(ctx, xspine.MarketData)
	require.NoError(t, err)
	assert.Equal(t, cfg.StreamName(xspine.MarketData), info.Stream)
	assert.Equal(t, int64(1), info.Length)
	assert.NotEmpty(t, info.LastID)
}

func TestLog_ClaimStale(t *testing.T) {
	l, cfg := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	ev := marketEvent("AAPL", 187.25)
	_, err := l.Publish(ctx, ev)
	require.NoError(t, err)

	// A second consumer reads the entry and dies without acking.
	other := New(Config{
		Addr:         cfg.Addr,
		Group:        cfg.Group,
		Consumer:     "crashed-consumer",
		Block:        100 * time.Millisecond,
		StreamPrefix: cfg.StreamPrefix,
		MaxLenApprox: cfg.MaxLenApprox,
	})
	require.NoError(t, other.Connect(ctx))
	read, err := other.Consume(ctx, []xspine.EventType{xspine.MarketData}, 10)
	require.NoError(t, err)
	require.Len(t, read, 1)
	require.NoError(t, other.Close())

	time.Sleep(50 * time.Millisecond)

	claimed, err := l.ClaimStale(ctx, xspine.MarketData, 10*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ev.ID, claimed[0].Event.ID)

	require.NoError(t, l.Ack(ctx, xspine.MarketData, claimed[0].MessageID))
}

func TestLog_DurabilityAcrossReconnect(t *testing.T) {
	l, _ := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))

	before := time.Now().Add(-time.Second)
	first := marketEvent("AAPL", 187.25)
	second := marketEvent("AAPL", 187.30)
	_, err := l.Publish(ctx, first)
	require.NoError(t, err)
	_, err = l.Publish(ctx, second)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.False(t, l.Connected())

	// A fresh connection sees everything persisted before the close,
	// without re-ingestion.
	require.NoError(t, l.Connect(ctx))

	entries, err := l.Consume(ctx, []xspine.EventType{xspine.MarketData}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].Event.ID)
	assert.Equal(t, second.ID, entries[1].Event.ID)

	replayed, err := l.Replay(ctx, xspine.MarketData, before, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, first.ID, replayed[0].Event.ID)
}

func TestLog_CreateStreams_Idempotent(t *testing.T) {
	l, _ := liveLog(t)
	ctx := context.Background()
	require.NoError(t, l.CreateStreams(ctx))
	require.NoError(t, l.CreateStreams(ctx))
}

func TestLog_NotConnected(t *testing.T) {
	l := New(Defaults())
	ctx := context.Background()

	_, err := l.Publish(ctx, marketEvent("AAPL", 1))
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = l.Consume(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = l.Replay(ctx, xspine.MarketData, time.Now(), time.Now(), 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, l.CreateStreams(ctx), ErrNotConnected)
	assert.False(t, l.Connected())
	assert.NoError(t, l.Close())
}

func TestLog_ConnectWithRetry_SurfacesLastError(t *testing.T) {
	cfg := Defaults()
	cfg.Addr = "127.0.0.1:1" // nothing listens here
	l := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.ConnectWithRetry(ctx, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
}
