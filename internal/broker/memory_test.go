package broker

import (
	"context"
	"testing"
	"time"
)

func receiveOne(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("delivery channel closed")
		}
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return nil
}

func TestPublishConsumeAck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(4)
	if err := q.Publish(ctx, []byte(`{"job":"a"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	d := receiveOne(t, ch)
	if string(d.Body()) != `{"job":"a"}` {
		t.Errorf("Body = %q, want %q", d.Body(), `{"job":"a"}`)
	}
	if d.Redelivered() {
		t.Error("Redelivered = true on first delivery, want false")
	}
	if err := d.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after ack, want 0", q.Len())
	}
}

func TestNackRequeueRedelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(4)
	if err := q.Publish(ctx, []byte("payload")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	first := receiveOne(t, ch)
	if err := first.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	second := receiveOne(t, ch)
	if string(second.Body()) != "payload" {
		t.Errorf("redelivered body = %q, want %q", second.Body(), "payload")
	}
	if !second.Redelivered() {
		t.Error("Redelivered = false on second delivery, want true")
	}
	if err := second.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestNackDropDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(4)
	if err := q.Publish(ctx, []byte("poison")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	d := receiveOne(t, ch)
	if err := d.Nack(false); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after drop, want 0", q.Len())
	}
}

func TestDoubleSettleFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(4)
	if err := q.Publish(ctx, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	d := receiveOne(t, ch)
	if err := d.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := d.Ack(); err == nil {
		t.Error("second Ack succeeded, want error")
	}
	if err := d.Nack(true); err == nil {
		t.Error("Nack after Ack succeeded, want error")
	}
}
