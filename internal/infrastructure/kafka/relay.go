// Package kafka relays in-process domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"go.opentelemetry.io/otel"
)

const defaultWriteTimeout = 5 * time.Second

// MessageWriter abstracts kafka.Writer for testability.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter builds a synchronous writer that hashes message keys to partitions,
// so events for one order stay ordered. brokers is a comma-separated host:port list.
func NewWriter(brokers, topic string) *kafka.Writer {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// Envelope is the JSON value written for every relayed event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	RelayedAt time.Time       `json:"relayed_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Relay subscribes to domain events and writes each one to Kafka. Write
// failures are logged and counted; the in-process flow never waits on Kafka.
type Relay struct {
	writer     MessageWriter
	subscriber domoutbox.Subscriber
	events     []string
	timeout    time.Duration

	log      observability.Logger
	failures observability.Counter
	now      func() time.Time
}

func NewRelay(writer MessageWriter, subscriber domoutbox.Subscriber, obs observability.Observability, events ...string) *Relay {
	obs = observability.Or(obs)
	return &Relay{
		writer:     writer,
		subscriber: subscriber,
		events:     events,
		timeout:    defaultWriteTimeout,
		log:        obs.Logger().With(observability.F("component", "kafka-relay")),
		failures:   obs.Metrics().Counter(observability.MSideEffectFailures),
		now:        time.Now,
	}
}

func (r *Relay) Start() {
	if r.writer == nil || r.subscriber == nil {
		return
	}
	for _, name := range r.events {
		r.subscriber.Subscribe(name, r.handle)
	}
}

// Close flushes and closes the writer when it supports it.
func (r *Relay) Close() error {
	if c, ok := r.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Relay) handle(ctx context.Context, e domoutbox.Event) error {
	msg, err := r.message(ctx, e)
	if err == nil {
		writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = r.writer.WriteMessages(writeCtx, msg)
		cancel()
	}
	if err != nil {
		r.failures.Add(1, observability.L("effect", "kafka_relay"))
		logctx.FromOr(ctx, r.log).Warn("kafka_relay_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
	return nil
}

func (r *Relay) message(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode %s: %w", e.EventName(), err)
	}
	value, err := json.Marshal(Envelope{
		ID:        uuid.NewString(),
		Type:      e.EventName(),
		RelayedAt: r.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode envelope: %w", err)
	}

	msg := kafka.Message{
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.EventName())}},
	}
	if p, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(p.PartitionKey())
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})
	return msg, nil
}

// headerCarrier lets the otel propagator write trace headers onto a message.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
