package events

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherDeliversToEverySubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, stopFirst := dispatcher.Subscribe(ctx)
	defer stopFirst()
	second, stopSecond := dispatcher.Subscribe(ctx)
	defer stopSecond()

	message := Message{
		Topic:     TopicDataChanged,
		Kind:      "customers",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	dispatcher.Publish(message)

	for _, stream := range []<-chan Message{first, second} {
		select {
		case received := <-stream:
			if received.Topic != TopicDataChanged || received.Kind != "customers" {
				t.Fatalf("unexpected message %+v", received)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected message delivery")
		}
	}
}

func TestDispatcherDropsMessagesWithoutTopic(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, stop := dispatcher.Subscribe(ctx)
	defer stop()

	dispatcher.Publish(Message{Kind: "customers"})

	select {
	case message := <-stream:
		t.Fatalf("expected no delivery for topicless message, got %+v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, stop := dispatcher.Subscribe(ctx)
	stop()

	dispatcher.Publish(Message{Topic: TopicNotification})

	select {
	case message := <-stream:
		t.Fatalf("expected no delivery after unsubscribe, got %+v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherDoesNotBlockOnSlowSubscribers(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, stop := dispatcher.Subscribe(ctx)
	defer stop()

	done := make(chan struct{})
	go func() {
		// Overrun the buffer; the publisher must drop, not block.
		for i := 0; i < 100; i++ {
			dispatcher.Publish(Message{Topic: TopicDataChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected publisher to never block")
	}
}
