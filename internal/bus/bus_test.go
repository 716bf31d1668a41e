package bus

import (
	"context"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(nil)
	defer sub.Close()

	b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-1", nil))

	select {
	case event := <-sub.C:
		if event.Kind != KindSessionIdle || event.SessionID != "sess-1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFilterByKind(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(&Filter{Kinds: []Kind{KindToolExecutionStarted}})
	defer sub.Close()

	b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-1", nil))
	b.Publish(context.Background(), NewEvent(KindToolExecutionStarted, "sess-1", "edit_file"))

	select {
	case event := <-sub.C:
		if event.Kind != KindToolExecutionStarted {
			t.Fatalf("expected only tool.execution.started, got %s", event.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case event := <-sub.C:
		t.Fatalf("expected no further events, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusFilterBySessionID(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(&Filter{SessionIDs: []string{"sess-1"}})
	defer sub.Close()

	b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-2", nil))
	b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-1", nil))

	select {
	case event := <-sub.C:
		if event.SessionID != "sess-1" {
			t.Fatalf("expected sess-1, got %s", event.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestBusMultipleSubscribersFanOut(t *testing.T) {
	b := New(nil)
	subA := b.Subscribe(nil)
	subB := b.Subscribe(nil)
	defer subA.Close()
	defer subB.Close()

	b.Publish(context.Background(), NewEvent(KindWriterProgress, "sess-1", "outline"))

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case event := <-sub.C:
			if event.Kind != KindWriterProgress {
				t.Fatalf("unexpected kind: %s", event.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}
}

func TestBusCloseUnblocksSubscribers(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(nil)

	b.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected channel to be closed with no pending events")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusDropsEventsForSlowSubscriber(t *testing.T) {
	b := New(nil, WithBufferSize(1))
	sub := b.Subscribe(nil)
	defer sub.Close()

	// Fill the buffer, then publish one more: the second publish must not
	// block even though nothing is draining the channel yet.
	b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-1", nil))
	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), NewEvent(KindSessionIdle, "sess-1", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestSubscriptionCloseIsIdempotentSafe(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(nil)
	sub.Close()

	// A second Close on an already-removed subscription must not panic.
	sub.Close()
}
