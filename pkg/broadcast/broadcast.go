// Package broadcast fans values out to any number of subscribers.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// dropInterval paces the removal of subscribers without room once a
// publish gave up.
const dropInterval = 5 * time.Millisecond

type subscription[T any] struct {
	ch   chan T
	sub  event.Subscription
	once sync.Once
}

// Hub delivers every published value to every current subscriber. Publish
// blocks until each subscriber accepted the value or unsubscribed.
type Hub[T any] struct {
	feed  event.FeedOf[T]
	scope event.SubscriptionScope

	mu      sync.Mutex
	subs    map[*subscription[T]]struct{}
	closed  bool
	closing chan struct{}
	once    sync.Once
}

func New[T any]() *Hub[T] {
	return &Hub[T]{
		subs:    make(map[*subscription[T]]struct{}),
		closing: make(chan struct{}),
	}
}

// Subscribe returns a channel of published values and a function that
// removes the subscription and closes the channel.
func (h *Hub[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	s := &subscription[T]{ch: ch}
	s.sub = h.scope.Track(h.feed.Subscribe(ch))
	h.subs[s] = struct{}{}
	return ch, func() { h.remove(s) }
}

// remove detaches s from the feed before closing its channel. Unsubscribe
// returns only once no send to the channel is in progress.
func (h *Hub[T]) remove(s *subscription[T]) {
	s.once.Do(func() {
		s.sub.Unsubscribe()

		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()

		close(s.ch)
	})
}

// Publish sends v to all subscribers. When ctx ends first, subscribers that
// have no room for v are unsubscribed so the send completes, and ctx.Err()
// is returned.
func (h *Hub[T]) Publish(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		h.feed.Send(v)
	}()

	select {
	case <-sent:
		return nil
	case <-h.closing:
		<-sent
		return nil
	case <-ctx.Done():
	}

	ticker := time.NewTicker(dropInterval)
	defer ticker.Stop()
	for {
		h.dropStalled()
		select {
		case <-sent:
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dropStalled unsubscribes every subscriber whose channel is full.
func (h *Hub[T]) dropStalled() {
	h.mu.Lock()
	var stalled []*subscription[T]
	for s := range h.subs {
		if len(s.ch) == cap(s.ch) {
			stalled = append(stalled, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stalled {
		h.remove(s)
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	return h.scope.Count()
}

// Close closes every subscriber channel and releases blocked publishers.
// Later subscriptions receive a closed channel.
func (h *Hub[T]) Close() {
	h.once.Do(func() { close(h.closing) })

	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription[T], 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s)
	}
	h.scope.Close()
}
