package events

import (
	"context"
	"testing"
	"time"

	"browsercore/internal/coretypes"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New(16, nil)
	sub := b.Subscribe([]coretypes.EventKind{coretypes.EventNavigationCompleted}, 4, 0)
	defer b.Unsubscribe(sub)

	b.Publish(coretypes.Event{Kind: coretypes.EventSessionCreated, SessionID: "s1"})
	b.Publish(coretypes.Event{Kind: coretypes.EventNavigationCompleted, SessionID: "s1"})

	select {
	case evt := <-sub.Events():
		if evt.Kind != coretypes.EventNavigationCompleted {
			t.Fatalf("expected navigation_completed, got %v", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsOnFullQueueWithoutBlocking(t *testing.T) {
	b := New(16, nil)
	sub := b.Subscribe(nil, 1, 0)
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(coretypes.Event{Kind: coretypes.EventToolExecuted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}
}

func TestWaitForReturnsOnMatch(t *testing.T) {
	b := New(16, nil)
	sub := b.Subscribe(nil, 4, 0)
	defer b.Unsubscribe(sub)

	go func() {
		b.Publish(coretypes.Event{Kind: coretypes.EventSessionClosed, SessionID: "other"})
		b.Publish(coretypes.Event{Kind: coretypes.EventSessionClosed, SessionID: "target"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	evt, ok := WaitFor(ctx, sub, func(e coretypes.Event) bool { return e.SessionID == "target" })
	if !ok {
		t.Fatal("expected a matching event")
	}
	if evt.SessionID != "target" {
		t.Fatalf("expected target session, got %q", evt.SessionID)
	}
}

func TestHistoryReturnsPublishedEvents(t *testing.T) {
	b := New(16, nil)
	b.Publish(coretypes.Event{Kind: coretypes.EventToolExecuted, SessionID: "s1"})
	b.Publish(coretypes.Event{Kind: coretypes.EventToolExecuted, SessionID: "s2"})

	got := b.History("s1", nil, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 event for s1, got %d", len(got))
	}
}
