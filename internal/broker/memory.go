package broker

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue is an in-process queue with the same ack/nack contract as the
// AMQP queue. Tests run the worker loop against it without a broker.
type MemoryQueue struct {
	mu     sync.Mutex
	queue  chan *memoryDelivery
	closed bool
}

// NewMemoryQueue creates a queue holding at most size pending messages.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{queue: make(chan *memoryDelivery, size)}
}

func (q *MemoryQueue) Publish(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	return q.push(&memoryDelivery{q: q, body: body})
}

func (q *MemoryQueue) push(d *memoryDelivery) error {
	select {
	case q.queue <- d:
		return nil
	default:
		return fmt.Errorf("queue full")
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-q.queue:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					_ = d.Nack(true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	return nil
}

// Len reports the number of messages waiting for delivery.
func (q *MemoryQueue) Len() int {
	return len(q.queue)
}

type memoryDelivery struct {
	q           *MemoryQueue
	body        []byte
	redelivered bool

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Body() []byte      { return d.body }
func (d *memoryDelivery) Redelivered() bool { return d.redelivered }

func (d *memoryDelivery) Ack() error {
	return d.settle(func() error { return nil })
}

func (d *memoryDelivery) Nack(requeue bool) error {
	return d.settle(func() error {
		if !requeue {
			return nil
		}
		d.q.mu.Lock()
		defer d.q.mu.Unlock()
		if d.q.closed {
			return fmt.Errorf("queue closed")
		}
		return d.q.push(&memoryDelivery{q: d.q, body: d.body, redelivered: true})
	})
}

func (d *memoryDelivery) settle(f func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return fmt.Errorf("delivery already settled")
	}
	d.settled = true
	return f()
}
