package xspine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSON_FlatShape(t *testing.T) {
	ev := NewEventAt(MarketDataPayload{
		Symbol: "AAPL",
		Price:  decimal.NewFromFloat(187.25),
		Volume: decimal.NewFromInt(100),
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	// Envelope and payload fields share one flat object.
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "MARKET_DATA", m["event_type"])
	assert.Equal(t, ev.ID, m["event_id"])
	assert.Contains(t, m, "timestamp")
	assert.Equal(t, "AAPL", m["symbol"])
	assert.Contains(t, m, "price")
}

func TestEventJSON_RoundTrip(t *testing.T) {
	ev := NewEventAt(OrderPayload{
		OrderID:    "ord-1",
		Symbol:     "MSFT",
		Side:       SideSell,
		Quantity:   decimal.NewFromInt(25),
		OrderType:  OrderLimit,
		Price:      decimal.NewFromFloat(401.5),
		Status:     StatusPending,
		StrategyID: "meanrev",
		Metadata:   map[string]string{"venue": "dark"},
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))

	order, ok := got.Payload.(OrderPayload)
	require.True(t, ok)
	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, SideSell, order.Side)
	assert.True(t, order.Price.Equal(decimal.NewFromFloat(401.5)))
	assert.Equal(t, map[string]string{"venue": "dark"}, order.Metadata)
}

func TestEventJSON_PositionUpdateRoundTrip(t *testing.T) {
	ev := NewEvent(PositionUpdatePayload{
		Symbol:        "AAPL",
		Quantity:      decimal.NewFromInt(100),
		AveragePrice:  decimal.NewFromFloat(185.10),
		CurrentPrice:  decimal.NewFromFloat(187.25),
		UnrealizedPnL: decimal.NewFromFloat(215),
		BrokerName:    "paper",
	})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, PositionUpdate, got.Type)

	pos, ok := got.Payload.(PositionUpdatePayload)
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL.Equal(decimal.NewFromFloat(215)))
	assert.Equal(t, "paper", pos.BrokerName)
}

func TestEventJSON_UnknownType(t *testing.T) {
	var got Event
	err := json.Unmarshal([]byte(`{"event_type":"HEARTBEAT","event_id":"x","timestamp":"2026-03-01T12:00:00Z"}`), &got)

	var unknown UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "HEARTBEAT", unknown.Type)
}
