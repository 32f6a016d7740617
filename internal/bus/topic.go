package bus

import (
	"sync"
	"sync/atomic"
)

type subscriber[T any] struct {
	ch      chan T
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Topic fans values out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the value.
type Topic[T any] struct {
	name      string
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	published atomic.Uint64
	closed    bool
}

// NewTopic returns an empty topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, subs: make(map[string]*subscriber[T])}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers id with a buffer of the given size.
func (t *Topic[T]) Subscribe(id string, buffer int) (<-chan T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTopicClosed
	}
	if _, exists := t.subs[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber[T]{ch: make(chan T, buffer)}
	t.subs[id] = sub
	return sub.ch, nil
}

// Unsubscribe removes id and closes its channel.
func (t *Topic[T]) Unsubscribe(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, exists := t.subs[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	delete(t.subs, id)
	close(sub.ch)
	return nil
}

// Publish sends a copy of v to every subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	t.published.Add(1)

	for _, sub := range t.subs {
		select {
		case sub.ch <- v:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Published returns how many values have been published.
func (t *Topic[T]) Published() uint64 {
	return t.published.Load()
}

// Stats returns the counters for subscriber id.
func (t *Topic[T]) Stats(id string) (SubscriberStats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sub, exists := t.subs[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    sub.sent.Load(),
		Dropped: sub.dropped.Load(),
	}, nil
}

// Close closes every subscriber channel. Later publishes are ignored.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
}
