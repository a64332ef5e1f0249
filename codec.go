package xspine

import (
	"encoding/json"
	"fmt"
	"time"
)

// The wire shape is a single flat JSON object: the envelope fields
// event_type, event_id and timestamp merged with the payload's own fields.
// Consumers dispatch on event_type, so the discriminator must survive every
// round trip unchanged.

type envelope struct {
	Type      EventType `json:"event_type"`
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON flattens the event into the wire object.
func (e Event) MarshalJSON() ([]byte, error) {
	body := map[string]json.RawMessage{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Type, err)
		}
	}

	env := envelope{Type: e.Type, ID: e.ID, Timestamp: e.Timestamp.UTC()}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	envFields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &envFields); err != nil {
		return nil, err
	}
	for k, v := range envFields {
		body[k] = v
	}
	return json.Marshal(body)
}

// UnmarshalJSON reads the discriminator first, then decodes the matching
// payload variant from the same flat object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	p, err := emptyPayload(env.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	e.Type = env.Type
	e.ID = env.ID
	e.Timestamp = env.Timestamp.UTC()
	e.Payload = deref(env.Type, p)
	return nil
}

func emptyPayload(t EventType) (any, error) {
	switch t {
	case MarketData:
		return &MarketDataPayload{}, nil
	case Order:
		return &OrderPayload{}, nil
	case Fill:
		return &FillPayload{}, nil
	case Signal:
		return &SignalPayload{}, nil
	case OrderUpdate:
		return &OrderUpdatePayload{}, nil
	case PositionUpdate:
		return &PositionUpdatePayload{}, nil
	}
	return nil, UnknownEventTypeError{Type: string(t)}
}

func deref(t EventType, p any) Payload {
	switch t {
	case MarketData:
		return *p.(*MarketDataPayload)
	case Order:
		return *p.(*OrderPayload)
	case Fill:
		return *p.(*FillPayload)
	case Signal:
		return *p.(*SignalPayload)
	case OrderUpdate:
		return *p.(*OrderUpdatePayload)
	default:
		return *p.(*PositionUpdatePayload)
	}
}
