// Package kafka provides an eventstream publisher backed by Apache Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/vivek100/spool/pkg/eventstream"
)

// Publisher publishes session events to a Kafka topic as JSON messages keyed
// by session ID, so records for one session land in one partition.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// Config configures the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic receives session events.
	Topic string

	// Logger is optional; nil disables publish logging.
	Logger *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafkago.Hash{},
			// Session events are telemetry; don't stall capture on acks.
			RequiredAcks: kafkago.RequireOne,
		},
		logger: logger,
	}, nil
}

// PublishSession writes the event to the configured topic.
func (p *Publisher) PublishSession(ctx context.Context, event *eventstream.SessionRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilSessionEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding session event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Session.SessionID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing session event: %w", err)
	}

	p.logger.Debug("published session event",
		"event_id", event.EventID,
		"session_id", event.Session.SessionID,
		"topic", p.writer.Topic,
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
