package forward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// MessageWriter is the part of *kafka.Writer the Kafka sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink appends each point to a topic, keyed by device ID so a
// device's points stay on one partition.
type KafkaSink struct {
	w MessageWriter
}

// NewKafkaSink builds a synchronous writer for the configured brokers.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Push implements Sink.
func (s *KafkaSink) Push(ctx context.Context, p telemetry.Point) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.DeviceID),
		Value: value,
	})
}

// Close flushes and closes the writer. The dispatcher calls it on shutdown.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
