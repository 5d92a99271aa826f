package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daohub_backend/internal/config"
	"daohub_backend/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads domain events and hands them to a Handler. Offsets are
// committed after handling; malformed or unknown events are committed and
// skipped, other failures are retried before the offset moves on.
type Consumer struct {
	reader     MessageReader
	handler    Handler
	maxRetries int
	retryDelay time.Duration
}

func NewConsumer(cfg config.KafkaConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	})
	return NewConsumerWithReader(reader, handler)
}

func NewConsumerWithReader(reader MessageReader, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		handler:    handler,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled or the reader fails permanently.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("event consumer started")
	defer logger.Info("event consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch event: %w", err)
		}

		c.process(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WorkerLog("event-consumer", "commit", err, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	var ev DomainEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.WorkerLog("event-consumer", "decode", err, "partition", msg.Partition, "offset", msg.Offset)
		return
	}

	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = c.handler.Handle(ctx, ev)
		if err == nil || errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrUnknownEvent) {
			break
		}
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
	}
	logger.WorkerLog("event-consumer", ev.Type, err, "event_id", ev.ID, "offset", msg.Offset)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
