package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flow-alert-service/internal/config"
	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// Publisher produces alert records to a Kafka topic.
// It implements pipeline.AlertPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured alert topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAlertTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishAlert serializes one alert record and writes it keyed by user id,
// so a user's alerts stay ordered within a partition.
func (p *Publisher) PublishAlert(ctx context.Context, rec domain.AlertRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write alert %s: %w", rec.AlertID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an AlertRecord into a Kafka message.
func serializeToMessage(rec domain.AlertRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.UserID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "alert_id", Value: []byte(rec.AlertID)},
			{Key: "severity", Value: []byte(rec.Severity)},
			{Key: "sent", Value: []byte(strconv.FormatBool(rec.Sent))},
			{Key: "triggered_at", Value: []byte(rec.AlertTriggeredAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
