package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	defAckWait     = 30 * time.Second
	defMaxDeliver  = 3
	defFetchWindow = 5 * time.Second
)

// Queue is a durable, at-least-once JetStream work queue: one stream per
// subject, one durable pull consumer per queue. It carries opaque payloads —
// callers own their own message encoding.
type Queue struct {
	js      jetstream.JetStream
	stream  jetstream.Stream
	subject string
}

// NewQueue creates (or reuses) a work-queue stream bound to subject, with
// maxAge retention on undelivered messages.
func NewQueue(ctx context.Context, nc *nats.Conn, name, subject string, maxAge time.Duration) (*Queue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    maxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s stream: %w", name, err)
	}
	return &Queue{js: js, stream: stream, subject: subject}, nil
}

// Publish enqueues payload for later consumption.
func (q *Queue) Publish(ctx context.Context, payload []byte) error {
	_, err := q.js.Publish(ctx, q.subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.subject, err)
	}
	return nil
}

// Handler processes one message's payload. A returned error nacks the
// message so JetStream redelivers it, up to the consumer's max-deliver limit.
type Handler func(ctx context.Context, payload []byte) error

// Consume pulls messages from a durable consumer named consumerName and
// invokes handler for each, blocking until ctx is canceled.
func (q *Queue) Consume(ctx context.Context, consumerName string, handler Handler) error {
	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:       consumerName,
		Durable:    consumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    defAckWait,
		MaxDeliver: defMaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(defFetchWindow))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			continue
		}
		for msg := range msgs.Messages() {
			if err := handler(ctx, msg.Data()); err != nil {
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			continue
		}
	}
}
