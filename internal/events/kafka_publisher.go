package events

import (
	"context"
	"encoding/json"

	"Hephaestus/internal/models"
	"Hephaestus/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes task lifecycle events to a Kafka topic, keyed by
// task ID so all events of one task land on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaPublisher{
		writer: writer,
		log:    log,
	}
}

// Publish implements TaskEventPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event TaskEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(models.ErrorInfo{Kind: "encode_error", Message: err.Error()}).
			Error("Failed to marshal task event for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: msgBytes,
	})
	if err != nil {
		p.log.WithTask(event.TaskID).WithError(models.ErrorInfo{Kind: "kafka_error", Message: err.Error()}).
			Error("Failed to write task event to Kafka")
		return err
	}
	return nil
}

// Close implements TaskEventPublisher.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
