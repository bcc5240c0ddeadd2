package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "signout", Body: []byte("entry-1")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Type != "signout" || string(msg.Body) != "entry-1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Publish(ctx, Message{Type: "signin"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// queue full; a cancelled context must unblock the publisher
	cancel()
	if err := q.Publish(ctx, Message{Type: "signin"}); err == nil {
		t.Fatalf("expected context error on full queue")
	}
}
