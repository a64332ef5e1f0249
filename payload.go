package xspine

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MarketDataPayload carries a price/volume update for one symbol. Bid and
// Ask are optional; a zero decimal means "not quoted".
type MarketDataPayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
	Bid    decimal.Decimal `json:"bid,omitempty"`
	Ask    decimal.Decimal `json:"ask,omitempty"`
}

func (MarketDataPayload) EventType() EventType { return MarketData }

// Spread returns ask-bid, or false when either side is unquoted.
func (p MarketDataPayload) Spread() (decimal.Decimal, bool) {
	if p.Bid.IsZero() || p.Ask.IsZero() {
		return decimal.Zero, false
	}
	return p.Ask.Sub(p.Bid), true
}

// MidPrice returns (bid+ask)/2, or false when either side is unquoted.
func (p MarketDataPayload) MidPrice() (decimal.Decimal, bool) {
	if p.Bid.IsZero() || p.Ask.IsZero() {
		return decimal.Zero, false
	}
	return p.Bid.Add(p.Ask).Div(decimal.NewFromInt(2)), true
}

// OrderPayload is an execution request. Price is required for limit orders,
// StopPrice for stop orders; Validate enforces both.
type OrderPayload struct {
	OrderID    string            `json:"order_id"`
	Symbol     string            `json:"symbol"`
	Side       OrderSide         `json:"side"`
	Quantity   decimal.Decimal   `json:"quantity"`
	OrderType  OrderType         `json:"order_type"`
	Price      decimal.Decimal   `json:"price,omitempty"`
	StopPrice  decimal.Decimal   `json:"stop_price,omitempty"`
	Status     OrderStatus       `json:"status"`
	StrategyID string            `json:"strategy_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (OrderPayload) EventType() EventType { return Order }

var (
	errPriceRequired     = errors.New("price is required for limit orders")
	errStopPriceRequired = errors.New("stop price is required for stop orders")
)

// Validate checks the cross-field constraints of the order.
func (p OrderPayload) Validate() error {
	switch p.OrderType {
	case OrderLimit, OrderStopLimit:
		if p.Price.IsZero() {
			return errPriceRequired
		}
	}
	switch p.OrderType {
	case OrderStop, OrderStopLimit:
		if p.StopPrice.IsZero() {
			return errStopPriceRequired
		}
	}
	return nil
}

// FillPayload confirms an execution.
type FillPayload struct {
	OrderID       string          `json:"order_id"`
	Symbol        string          `json:"symbol"`
	ExecutedQty   decimal.Decimal `json:"executed_qty"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Commission    decimal.Decimal `json:"commission"`
}

func (FillPayload) EventType() EventType { return Fill }

// NotionalValue returns qty*price.
func (p FillPayload) NotionalValue() decimal.Decimal {
	return p.ExecutedQty.Mul(p.ExecutedPrice)
}

// NetProceeds returns the notional value less commission.
func (p FillPayload) NetProceeds() decimal.Decimal {
	return p.NotionalValue().Sub(p.Commission)
}

// SignalPayload is a strategy recommendation with a strength in [0,1].
type SignalPayload struct {
	Symbol     string          `json:"symbol"`
	SignalType SignalType      `json:"signal_type"`
	Strength   decimal.Decimal `json:"strength"`
	StrategyID string          `json:"strategy_id"`
}

func (SignalPayload) EventType() EventType { return Signal }

var actionableStrength = decimal.NewFromFloat(0.5)

// Actionable reports whether the signal is strong enough to act on.
func (p SignalPayload) Actionable() bool {
	return p.Strength.GreaterThanOrEqual(actionableStrength)
}

// OrderUpdatePayload is a broker-side order status change.
type OrderUpdatePayload struct {
	OrderID           string          `json:"order_id"`
	BrokerOrderID     string          `json:"broker_order_id"`
	Symbol            string          `json:"symbol"`
	Status            OrderStatus     `json:"status"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	AverageFillPrice  decimal.Decimal `json:"average_fill_price"`
	BrokerName        string          `json:"broker_name"`
	UpdateReason      string          `json:"update_reason,omitempty"`
}

func (OrderUpdatePayload) EventType() EventType { return OrderUpdate }

// PositionUpdatePayload is a broker-side position change.
type PositionUpdatePayload struct {
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	CommissionPaid decimal.Decimal `json:"commission_paid"`
	BrokerName     string          `json:"broker_name"`
}

func (PositionUpdatePayload) EventType() EventType { return PositionUpdate }
