package events

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.SubscribeTopic(context.Background(), TopicTask, 10)

	event := TaskStartedEvent{
		Session:   "s-1",
		ID:        "task-1",
		Title:     "Test Task",
		Role:      "coder",
		Attempt:   1,
		Timestamp: time.Now(),
	}

	bus.Publish(TopicTask, event)

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.SessionID() != "s-1" {
			t.Errorf("expected session ID 's-1', got '%s'", received.SessionID())
		}
		if received.EventType() != EventTypeTaskStarted {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.SubscribeTopic(context.Background(), TopicTask, 10)
	ch2 := bus.SubscribeTopic(context.Background(), TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{
		ID:        "task-2",
		Result:    "success",
		Duration:  100 * time.Millisecond,
		Timestamp: time.Now(),
	})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are full
// and that skipped deliveries are counted.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.SubscribeTopic(context.Background(), TopicTask, 1)

	done := make(chan bool)
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskStartedEvent{
				ID:        fmt.Sprintf("task-%d", i+1),
				Role:      "coder",
				Timestamp: time.Now(),
			})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("buffered event = %q, want task-1", received.TaskID())
		}
	default:
		t.Error("expected at least one event in buffer")
	}

	if got := bus.Dropped(); got != 9 {
		t.Errorf("Dropped() = %d, want 9", got)
	}
}

// TestCloseSignalsSubscribers verifies that closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()

	ch := bus.SubscribeTopic(context.Background(), TopicTask, 10)
	all := bus.Subscribe(context.Background(), Filter{}, 10)

	bus.Close()
	bus.Close() // idempotent

	received := 0
	for range ch {
		received++
	}
	for range all {
		received++
	}

	if received != 0 {
		t.Errorf("expected 0 events after close, got %d", received)
	}
}

// TestSubscribeAfterClose verifies late subscribers get a closed channel.
func TestSubscribeAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	if _, ok := <-bus.SubscribeTopic(context.Background(), TopicSession, 1); ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
	if _, ok := <-bus.Subscribe(context.Background(), Filter{}, 1); ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
}

// TestPublishAfterClose verifies publishing after close doesn't panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	ch := bus.SubscribeTopic(context.Background(), TopicTask, 10)

	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()

	bus.Publish(TopicTask, TaskStartedEvent{ID: "task-1", Timestamp: time.Now()})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after bus was closed")
		}
	default:
	}
}

// TestMultipleTopics verifies topic isolation.
func TestMultipleTopics(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.SubscribeTopic(context.Background(), TopicTask, 10)
	graphCh := bus.SubscribeTopic(context.Background(), TopicGraph, 10)

	bus.Publish(TopicTask, TaskFailedEvent{ID: "task-1", Err: "boom", Attempts: 3, Timestamp: time.Now()})
	bus.Publish(TopicGraph, GraphProgressEvent{Total: 10, Completed: 5, Running: 2, Pending: 3, Timestamp: time.Now()})

	select {
	case received := <-taskCh:
		if received.EventType() != EventTypeTaskFailed {
			t.Errorf("task channel: expected task event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case received := <-graphCh:
		if received.EventType() != EventTypeGraphProgress {
			t.Errorf("graph channel: expected progress event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("graph channel: timeout waiting for event")
	}

	select {
	case <-taskCh:
		t.Error("task channel received unexpected event")
	case <-graphCh:
		t.Error("graph channel received unexpected event")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestSubscribeEmptyFilter verifies that an empty filter receives events from all topics.
func TestSubscribeEmptyFilter(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	allCh := bus.Subscribe(context.Background(), Filter{}, 20)

	bus.Publish(TopicSession, SessionStartedEvent{Session: "s-1", Objective: "ship it", Timestamp: time.Now()})
	bus.Publish(TopicTask, TaskBlockedEvent{Session: "s-1", ID: "task-2", BlockedBy: "task-1", Timestamp: time.Now()})
	bus.Publish(TopicGraph, DeadlockEvent{Session: "s-1", Stalled: []string{"task-3"}, Timestamp: time.Now()})

	receivedTypes := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case received := <-allCh:
			receivedTypes[received.EventType()] = true
			if received.SessionID() != "s-1" {
				t.Errorf("SessionID() = %q, want s-1", received.SessionID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	for _, want := range []string{EventTypeSessionStarted, EventTypeTaskBlocked, EventTypeGraphDeadlock} {
		if !receivedTypes[want] {
			t.Errorf("empty filter did not receive %s", want)
		}
	}

	select {
	case <-allCh:
		t.Error("received unexpected fourth event")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestPublishNilPublisher verifies the helper tolerates a nil publisher.
func TestPublishNilPublisher(t *testing.T) {
	Publish(nil, TopicTask, TaskStartedEvent{ID: "task-1"})

	bus := NewEventBus()
	defer bus.Close()
	ch := bus.SubscribeTopic(context.Background(), TopicTask, 1)

	Publish(bus, TopicTask, TaskStartedEvent{ID: "task-1"})
	select {
	case ev := <-ch:
		if ev.TaskID() != "task-1" {
			t.Errorf("TaskID() = %q, want task-1", ev.TaskID())
		}
	default:
		t.Fatal("expected event to be forwarded")
	}
}

// TestSubscribeSessionFilter verifies that session-scoped subscriptions skip
// events from other sessions.
func TestSubscribeSessionFilter(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(context.Background(), Filter{Topics: []string{TopicTask}, Session: "s-1"}, 10)

	bus.Publish(TopicTask, TaskStartedEvent{Session: "s-2", ID: "other"})
	bus.Publish(TopicGraph, GraphProgressEvent{Session: "s-1", Total: 1})
	bus.Publish(TopicTask, TaskStartedEvent{Session: "s-1", ID: "mine"})

	select {
	case ev := <-ch:
		if ev.TaskID() != "mine" {
			t.Errorf("TaskID() = %q, want mine", ev.TaskID())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected event %s", ev.EventType())
	default:
	}
	if bus.Dropped() != 0 {
		t.Errorf("filtered events must not count as dropped, got %d", bus.Dropped())
	}
}

// TestSubscriptionEndsWithContext verifies that cancelling the context closes
// the channel and stops delivery, while other subscribers keep receiving.
func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	scoped := bus.Subscribe(ctx, Filter{}, 10)
	other := bus.SubscribeTopic(context.Background(), TopicTask, 10)

	cancel()

	select {
	case _, ok := <-scoped:
		if ok {
			t.Fatal("expected no events on a cancelled subscription")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed after cancel")
	}

	bus.Publish(TopicTask, TaskStartedEvent{ID: "task-1"})
	select {
	case ev := <-other:
		if ev.TaskID() != "task-1" {
			t.Errorf("TaskID() = %q, want task-1", ev.TaskID())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber missed the event")
	}

	// Closing the bus after the subscription ended must not close it twice
	bus.Close()
}

// TestSubscribeCancelledContext verifies a subscription made with a finished
// context is closed immediately.
func TestSubscribeCancelledContext(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := <-bus.Subscribe(ctx, Filter{}, 1); ok {
		t.Error("expected closed channel for a cancelled context")
	}
}
