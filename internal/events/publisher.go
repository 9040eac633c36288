package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/domain"
)

// Publisher ships storefront activity to the analytics pipeline.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ActivityEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.ActivityEvent) error { return nil }
func (NopPublisher) Close() error                                        { return nil }

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.ActivityEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Actor), // actor keeps one user's events ordered
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Recorder publishes through an underlying Publisher without ever failing
// the caller: activity is best effort.
type Recorder struct {
	pub Publisher
	log *zap.Logger
}

func NewRecorder(pub Publisher, log *zap.Logger) *Recorder {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{pub: pub, log: log.Named("events")}
}

func (r *Recorder) Record(ctx context.Context, typ domain.EventType, actor string, payload map[string]any) {
	if r == nil {
		return
	}
	ev := domain.ActivityEvent{
		Type:       typ,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if err := r.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn("failed to publish activity event", zap.String("type", string(typ)), zap.Error(err))
	}
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.pub.Close()
}
