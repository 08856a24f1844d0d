// Package audit ships security-relevant gamification events to their sinks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// stamp fills the fields every sink expects.
func stamp(event models.AuditEvent) models.AuditEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Record(ctx context.Context, event models.AuditEvent) error {
	event = stamp(event)
	s.logger.InfoContext(ctx, "audit event",
		"id", event.ID,
		"action", event.Action,
		"actor_id", event.ActorID,
		"target", event.Target,
		"details", event.Details,
	)
	return nil
}

// KafkaSink publishes events as JSON, keyed by actor so one user's events
// stay on one partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// NewKafkaProducer builds a synchronous producer for cfg.
func NewKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return producer, nil
}

func (s *KafkaSink) Record(ctx context.Context, event models.AuditEvent) error {
	event = stamp(event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(event.ActorID, 10)),
		Value:     sarama.ByteEncoder(data),
		Timestamp: event.OccurredAt,
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// MultiSink fans an event out to every sink. Each sink sees the event even
// when an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event models.AuditEvent) error {
	event = stamp(event)
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
