package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/domain"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads activity events back from the topic, for tailing and
// local analytics.
type Consumer struct {
	reader messageReader
	log    *zap.Logger
}

func NewConsumer(topic, groupID string, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, log: log.Named("events")}
}

// Run hands every decodable event to handle until ctx is done or handle
// fails. Malformed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(domain.ActivityEvent) error) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read activity event: %w", err)
		}

		var ev domain.ActivityEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			c.log.Warn("skipping malformed activity event", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if ev.Type == "" {
			ev.Type = domain.EventType(headerValue(m.Headers, "event_type"))
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
