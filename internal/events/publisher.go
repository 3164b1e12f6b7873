package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Publisher serializes domain events and hands them to a watermill publisher.
type Publisher struct {
	pub    message.Publisher
	logger *zap.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(pub message.Publisher, logger *zap.Logger) *Publisher {
	return &Publisher{pub: pub, logger: logger}
}

// NewAMQPPublisher connects a durable topic publisher to RabbitMQ.
func NewAMQPPublisher(amqpURL, queueSuffix string, logger *zap.Logger) (message.Publisher, error) {
	cfg := amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))

	pub, err := amqp.NewPublisher(cfg, NewZapLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return pub, nil
}

// Publish sends payload to topic as a JSON message.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("event_type", topic)
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	p.logger.Debug("event published", zap.String("topic", topic), zap.String("message_id", msg.UUID))
	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
