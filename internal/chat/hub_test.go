package chat

import (
	"context"
	"sync"
	"testing"
)

func TestHubPublishOnlyToConversation(t *testing.T) {
	hub := NewHub(4)
	ctx := context.Background()

	a := hub.Subscribe(ctx, 1, 10)
	b := hub.Subscribe(ctx, 2, 20)
	defer a.Close()
	defer b.Close()

	delivered, dropped := hub.Publish(ctx, Event{Type: EventMessage, ConversationID: 1})
	if delivered != 1 || dropped != 0 {
		t.Fatalf("expected 1 delivered, got %d delivered %d dropped", delivered, dropped)
	}
	if len(a.Events()) != 1 {
		t.Fatalf("expected 1 queued event for conversation 1, got %d", len(a.Events()))
	}
	if len(b.Events()) != 0 {
		t.Fatalf("expected no events for conversation 2, got %d", len(b.Events()))
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(1)
	delivered, dropped := hub.Publish(context.Background(), Event{Type: EventMessage, ConversationID: 99})
	if delivered != 0 || dropped != 0 {
		t.Fatalf("expected nothing delivered, got %d/%d", delivered, dropped)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(2)
	ctx := context.Background()

	slow := hub.Subscribe(ctx, 1, 10)
	defer slow.Close()

	var dropped int
	for i := 0; i < 5; i++ {
		_, d := hub.Publish(ctx, Event{Type: EventMessage, ConversationID: 1})
		dropped += d
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped events, got %d", dropped)
	}
	if len(slow.Events()) != 2 {
		t.Fatalf("expected full buffer of 2, got %d", len(slow.Events()))
	}
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe(context.Background(), 1, 10)
	if hub.SubscriberCount(1) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount(1))
	}

	sub.Close()
	sub.Close()

	if hub.SubscriberCount(1) != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.SubscriberCount(1))
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed event channel")
	}
}

func TestHubConcurrentPublishAndClose(t *testing.T) {
	hub := NewHub(8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub := hub.Subscribe(ctx, 1, int64(i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(ctx, Event{Type: EventMessage, ConversationID: 1})
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()

	if n := hub.SubscriberCount(1); n != 0 {
		t.Fatalf("expected all subscriptions removed, got %d", n)
	}
}
