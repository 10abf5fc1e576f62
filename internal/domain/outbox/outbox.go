package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Store is the durable side of the outbox. Messages are appended by the owning
// aggregate's commit and drained by a relay.
type Store interface {
	PendingMessages(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids ...string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

const (
	envelopeVersion = "1.0"
	envelopeSource  = "inventory-reservation-engine"
)

// Message is an event serialised into its wire envelope and waiting for delivery.
type Message struct {
	ID         string
	Name       string
	Key        string
	Payload    []byte
	OccurredAt time.Time
	Attempts   int
	LastError  string
}

func (m Message) EventName() string { return m.Name }

// Envelope is the JSON shape every message payload uses.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
}

type Metadata struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewMessage wraps e in an envelope. key selects the partition downstream.
func NewMessage(service, key string, e Event) (Message, error) {
	if e == nil {
		return Message{}, fmt.Errorf("outbox: nil event")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("outbox: marshal %s: %w", e.EventName(), err)
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	payload, err := json.Marshal(Envelope{
		Data: data,
		Metadata: Metadata{
			EventID:   id,
			EventType: e.EventName(),
			Service:   service,
			Version:   envelopeVersion,
			Timestamp: now,
			Source:    envelopeSource,
		},
	})
	if err != nil {
		return Message{}, fmt.Errorf("outbox: marshal envelope: %w", err)
	}
	return Message{
		ID:         id,
		Name:       e.EventName(),
		Key:        key,
		Payload:    payload,
		OccurredAt: now,
	}, nil
}

// Decode unpacks the envelope data into dst.
func (m Message) Decode(dst any) (Metadata, error) {
	var env Envelope
	if err := json.Unmarshal(m.Payload, &env); err != nil {
		return Metadata{}, fmt.Errorf("outbox: decode envelope %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return env.Metadata, fmt.Errorf("outbox: decode data %s: %w", m.ID, err)
	}
	return env.Metadata, nil
}
