package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope carried on the bus.
type Event struct {
	ID            uuid.UUID       `json:"event_id"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(routingKey string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         uuid.New(),
		RoutingKey: routingKey,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Handler processes events for the routing keys it declares.
type Handler interface {
	// EventTypes returns the routing keys this handler handles.
	EventTypes() []string
	Handle(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to a Handler for a fixed set of routing keys.
type HandlerFunc struct {
	Keys []string
	Fn   func(ctx context.Context, event *Event) error
}

func (h HandlerFunc) EventTypes() []string { return h.Keys }

func (h HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return h.Fn(ctx, event)
}
