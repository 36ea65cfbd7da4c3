package messaging

import (
	"context"
	"testing"
	"time"

	contractsv1 "guildhall/contracts/gen/events/v1"
)

func TestBusDeliversToEverySubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewBus(nil)

	first := make(chan string, 1)
	second := make(chan string, 1)
	for _, sink := range []chan string{first, second} {
		sink := sink
		if err := bus.Subscribe(ctx, "election.transitioned", "tally", func(_ context.Context, event contractsv1.Envelope) error {
			sink <- event.EventID
			return nil
		}); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	if err := bus.Publish(ctx, "election.transitioned", contractsv1.Envelope{EventID: "event-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	for _, sink := range []chan string{first, second} {
		select {
		case got := <-sink:
			if got != "event-1" {
				t.Fatalf("expected event-1, got %s", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for delivery")
		}
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)
	if err := bus.Publish(context.Background(), "ballot.confirmed", contractsv1.Envelope{EventID: "event-2"}); err != nil {
		t.Fatalf("publish without subscribers failed: %v", err)
	}
}

func TestBusPublishHonoursContextWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus(nil)
	bus.bufferSize = 0
	subCtx, stop := context.WithCancel(context.Background())
	defer stop()
	block := make(chan struct{})
	defer close(block)
	if err := bus.Subscribe(subCtx, "topic", "cg", func(context.Context, contractsv1.Envelope) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// the first event parks the handler; the second has nowhere to go
	if err := bus.Publish(context.Background(), "topic", contractsv1.Envelope{EventID: "a"}); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bus.Publish(ctx, "topic", contractsv1.Envelope{EventID: "b"}); err == nil {
		t.Fatalf("expected publish to stop at context deadline")
	}
}
