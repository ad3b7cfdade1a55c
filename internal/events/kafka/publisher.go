package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"autopost-engine/pkg/logger"
)

// Publisher writes posting-run events to a Kafka topic. The notification
// consumer turns them into user-facing alerts.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to publish posting-run event")
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
