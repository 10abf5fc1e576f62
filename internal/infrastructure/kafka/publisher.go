package kafka

import (
	"context"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerEventType = "event-type"
	headerEventID   = "event-id"

	defaultBatchTimeout = 10 * time.Millisecond
)

// Producer is the write side of a Kafka client.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// DefaultTopics maps event names onto their topics.
func DefaultTopics() map[string]string {
	return map[string]string{
		dominv.EventReserved:            "inventory-reserved",
		dominv.EventReleased:            "inventory-released",
		dominv.EventConfirmed:           "inventory-confirmed",
		dominv.EventAdjusted:            "inventory-adjusted",
		dominv.EventLowStock:            "low-stock-alert",
		domorder.EventStatusChanged:     "order-status-changed",
		domsaga.EventCompensationFailed: "saga-compensation-failed",
	}
}

// NewProducer builds a traced writer. Topics are chosen per message, so the
// writer itself has none.
func NewProducer(brokers []string, clientID string, tp trace.TracerProvider) (Producer, error) {
	base := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           defaultBatchTimeout,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: writer: %w", err)
	}
	return w, nil
}

// Publisher writes outbox messages to Kafka, keyed by aggregate id so each
// reservation or order stays ordered within its partition.
type Publisher struct {
	producer Producer
	topics   map[string]string
	service  string
	log      observability.Logger
}

func NewPublisher(producer Producer, topics map[string]string, service string, logger observability.Logger) *Publisher {
	if topics == nil {
		topics = DefaultTopics()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Publisher{
		producer: producer,
		topics:   topics,
		service:  service,
		log:      logger.With(observability.F("component", "kafka_publisher")),
	}
}

// Publish accepts outbox messages as they are; other events are wrapped in an
// envelope first. Events without a topic are skipped.
func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	m, ok := e.(domoutbox.Message)
	if !ok {
		var err error
		if m, err = domoutbox.NewMessage(p.service, "", e); err != nil {
			return err
		}
	}

	topic, ok := p.topics[m.Name]
	if !ok {
		p.log.Debug("kafka_no_topic", observability.F("event", m.Name))
		return nil
	}

	msg := kafkago.Message{
		Topic: topic,
		Value: m.Payload,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(m.Name)},
			{Key: headerEventID, Value: []byte(m.ID)},
		},
		Time: m.OccurredAt,
	}
	if m.Key != "" {
		msg.Key = []byte(m.Key)
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s to %s: %w", m.Name, topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
