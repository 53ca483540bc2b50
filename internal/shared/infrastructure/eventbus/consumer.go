package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventConsumer handles events whose routing keys match its patterns.
type EventConsumer interface {
	// EventTypes returns the routing key patterns this consumer handles.
	// Patterns follow AMQP topic rules, e.g. "alerts.critical.*" or "alerts.#".
	EventTypes() []string

	// Handle processes the event.
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is the envelope carried on the message bus.
type ConsumedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	RoutingKey string          `json:"routing_key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
	Metadata   EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata contains optional metadata about the event.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Source        string `json:"source,omitempty"`
}

// NewEvent wraps a payload in an envelope ready for publishing.
func NewEvent(routingKey string, payload any, occurredAt time.Time) (*ConsumedEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: routingKey,
		OccurredAt: occurredAt,
		Payload:    body,
	}, nil
}

// Consumer defines the interface for consuming events from a message broker.
type Consumer interface {
	// Start begins consuming messages. This is a blocking call.
	Start(ctx context.Context) error

	// RegisterConsumer registers an event consumer.
	RegisterConsumer(consumer EventConsumer)

	// Close closes the consumer connection.
	Close() error
}
