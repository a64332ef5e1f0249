package redislog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xspine"
)

func TestDecodeEntry_RoundTrip(t *testing.T) {
	ev := xspine.NewEvent(xspine.FillPayload{
		OrderID:       "ord-1",
		Symbol:        "AAPL",
		ExecutedQty:   decimal.NewFromInt(10),
		ExecutedPrice: decimal.NewFromFloat(187.25),
		Commission:    decimal.NewFromFloat(0.35),
	})
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	entry, err := decodeEntry(redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]interface{}{
			fieldEventType: string(ev.Type),
			fieldEventData: string(data),
			fieldTimestamp: "2023-11-14T22:13:20Z",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "1700000000000-0", entry.MessageID)
	assert.Equal(t, xspine.Fill, entry.Event.Type)
	assert.Equal(t, ev.ID, entry.Event.ID)

	fill, ok := entry.Event.Payload.(xspine.FillPayload)
	require.True(t, ok)
	assert.True(t, fill.ExecutedPrice.Equal(decimal.NewFromFloat(187.25)))
}

func TestDecodeEntry_MissingData(t *testing.T) {
	_, err := decodeEntry(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{fieldEventType: "FILL"},
	})
	assert.Error(t, err)
}

func TestDecodeEntry_NonStringData(t *testing.T) {
	_, err := decodeEntry(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{fieldEventData: 42},
	})
	assert.Error(t, err)
}

func TestDecodeEntry_UnknownType(t *testing.T) {
	_, err := decodeEntry(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			fieldEventData: `{"event_type":"HEARTBEAT","event_id":"x","timestamp":"2023-11-14T22:13:20Z"}`,
		},
	})
	var unknown xspine.UnknownEventTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "HEARTBEAT", unknown.Type)
}
