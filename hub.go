package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// hub fans values out to subscribers. Each subscriber owns a one-slot
// channel that always holds the latest value: a slow reader skips
// intermediate values but never blocks the publisher.
type hub[T any] struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan T
	closed bool
	done   chan struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{
		subs: make(map[uuid.UUID]chan T),
		done: make(chan struct{}),
	}
}

// subscribe registers a listener primed with initial. The channel is closed
// when ctx ends or the hub is closed.
func (h *hub[T]) subscribe(ctx context.Context, initial T) <-chan T {
	ch := make(chan T, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := uuid.New()
	h.subs[id] = ch
	ch <- initial
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		h.unsubscribe(id)
	}()
	return ch
}

func (h *hub[T]) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
			// Replace the stale value.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
