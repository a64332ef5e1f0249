package xspine

import (
	"time"

	"github.com/google/uuid"
)

// EventType partitions the bus into topics. The string values are the wire
// discriminators recorded alongside every persisted entry.
type EventType string

const (
	MarketData     EventType = "MARKET_DATA"
	Order          EventType = "ORDER"
	Fill           EventType = "FILL"
	Signal         EventType = "SIGNAL"
	OrderUpdate    EventType = "ORDER_UPDATE"
	PositionUpdate EventType = "POSITION_UPDATE"
)

// Topics returns every declared event type. The bus allocates one queue and
// one worker per entry; the durable log keeps one stream per entry.
func Topics() []EventType {
	return []EventType{MarketData, Order, Fill, Signal, OrderUpdate, PositionUpdate}
}

// Valid reports whether t is one of the declared topics.
func (t EventType) Valid() bool {
	switch t {
	case MarketData, Order, Fill, Signal, OrderUpdate, PositionUpdate:
		return true
	}
	return false
}

func (t EventType) String() string { return string(t) }

// OrderSide enumerates order direction.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType enumerates the supported order kinds.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus enumerates the order lifecycle.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// SignalType enumerates strategy signal directions.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Payload is the type-specific body of an Event. The closed set of
// implementations lives in payload.go; EventType ties each payload back to
// its topic.
type Payload interface {
	EventType() EventType
}

// Event is the immutable unit traveling the bus, the pipeline and the
// durable log. Events are passed by value and never mutated after
// construction; ID is unique for the process lifetime.
type Event struct {
	Type      EventType
	ID        string
	Timestamp time.Time
	Payload   Payload
}

// NewEvent wraps a payload with a fresh UUID and a UTC timestamp.
func NewEvent(p Payload) Event {
	return Event{
		Type:      p.EventType(),
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}
}

// NewEventAt is NewEvent with an explicit timestamp. Producers that replay
// historical data or run against a simulated clock set their own times.
func NewEventAt(p Payload, ts time.Time) Event {
	return Event{
		Type:      p.EventType(),
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		Payload:   p,
	}
}
