package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Filter selects the events a subscription receives. Empty Topics matches
// every topic; an empty Session matches every session.
type Filter struct {
	Topics  []string
	Session string
}

type subscription struct {
	ch      chan Event
	topics  map[string]struct{}
	session string
	stop    func() bool
}

func (s *subscription) wants(topic string, event Event) bool {
	if len(s.topics) > 0 {
		if _, ok := s.topics[topic]; !ok {
			return false
		}
	}
	return s.session == "" || event.SessionID() == s.session
}

// EventBus is an in-process pub-sub bus. Publishing never blocks: a
// subscriber whose buffer is full misses the event and the miss is counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    []*subscription
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a subscription matching f. The returned channel is
// closed when ctx ends or the bus is closed, whichever happens first.
// bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(ctx context.Context, f Filter, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := &subscription{
		ch:      make(chan Event, bufSize),
		session: f.Session,
	}
	if len(f.Topics) > 0 {
		sub.topics = make(map[string]struct{}, len(f.Topics))
		for _, topic := range f.Topics {
			sub.topics[topic] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || ctx.Err() != nil {
		close(sub.ch)
		return sub.ch
	}

	b.subs = append(b.subs, sub)
	sub.stop = context.AfterFunc(ctx, func() { b.unsubscribe(sub) })

	return sub.ch
}

// SubscribeTopic is shorthand for a subscription to a single topic.
func (b *EventBus) SubscribeTopic(ctx context.Context, topic string, bufSize int) <-chan Event {
	return b.Subscribe(ctx, Filter{Topics: []string{topic}}, bufSize)
}

func (b *EventBus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers event to every subscription whose filter matches.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(topic, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes the bus and every open subscription. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.stop()
		close(sub.ch)
	}
	b.subs = nil
}
