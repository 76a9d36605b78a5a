// Package broker holds the job queue contracts. The queue is durable and
// at-least-once: a delivery stays owned by its consumer until it is
// acknowledged or rejected, and a rejected delivery may be handed to any
// other consumer.
package broker

import "context"

// Delivery is one queue message held by a consumer until settled.
type Delivery interface {
	Body() []byte
	// Redelivered reports whether the broker has handed out this message before.
	Redelivered() bool
	// Ack removes the message from the queue permanently.
	Ack() error
	// Nack returns the message to the broker; requeue controls whether it
	// becomes eligible for redelivery.
	Nack(requeue bool) error
}

// Consumer yields deliveries from a single named queue. The returned channel
// closes when the underlying connection is lost or the context is cancelled;
// callers open a fresh consumer to resume.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// Publisher writes persistent messages to a single named queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Close() error
}
