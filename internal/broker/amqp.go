package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue is a RabbitMQ-backed queue. It implements Publisher and Consumer
// over one durable queue on a dedicated connection, so each worker owns its
// own channel and prefetch window.
type AMQPQueue struct {
	queue string
	log   *slog.Logger
	conn  *amqp.Connection
	ch    *amqp.Channel
}

// DialAMQP connects to the broker and declares the durable queue. The queue
// survives broker restarts; messages are published persistent.
func DialAMQP(url, queue string, logger *slog.Logger) (*AMQPQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	logger.Debug("broker.connected", "queue", queue)
	return &AMQPQueue{queue: queue, log: logger, conn: conn, ch: ch}, nil
}

// Publish writes one persistent JSON message to the queue.
func (q *AMQPQueue) Publish(ctx context.Context, body []byte) error {
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %q: %w", q.queue, err)
	}
	return nil
}

// Consume starts delivering messages with a prefetch window of exactly one:
// a consumer that holds an unacknowledged delivery receives no second one.
// The returned channel closes when the broker connection drops.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", q.queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- amqpDelivery{m}:
				case <-ctx.Done():
					// Hand the message back so another consumer picks it up.
					_ = m.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte           { return a.d.Body }
func (a amqpDelivery) Redelivered() bool      { return a.d.Redelivered }
func (a amqpDelivery) Ack() error             { return a.d.Ack(false) }
func (a amqpDelivery) Nack(requeue bool) error { return a.d.Nack(false, requeue) }
