// Package hub fans values out to any number of subscribers through a shared
// fixed-size ring. Publishers never wait on subscribers: a subscriber that
// falls more than the ring capacity behind is told how many values it
// missed and resumes from the oldest value still buffered.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of values retained for slow subscribers.
const DefaultCapacity = 16

// ErrClosed is returned by Recv once the hub is closed and the subscriber
// has drained everything published before the close.
var ErrClosed = errors.New("hub closed")

// LaggedError reports that a subscriber missed values.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind by %d values", e.Missed)
}

// Hub is a lossy broadcast channel.
type Hub[T any] struct {
	mu          sync.Mutex
	ring        []T
	head        uint64        // sequence number of the next published value
	wake        chan struct{} // closed and replaced on every publish
	closed      bool
	subscribers int
}

// New creates a hub retaining capacity values. Non-positive capacities use
// DefaultCapacity.
func New[T any](capacity int) *Hub[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub[T]{
		ring: make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (h *Hub[T]) Capacity() int {
	return len(h.ring)
}

// Publish stores v and wakes waiting subscribers. It returns the number of
// live subscribers; values published with none are still retained.
func (h *Hub[T]) Publish(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}
	h.ring[h.head%uint64(len(h.ring))] = v
	h.head++
	close(h.wake)
	h.wake = make(chan struct{})
	return h.subscribers
}

// Subscribe returns a subscription that receives values published from now on.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers++
	return &Subscription[T]{hub: h, next: h.head}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers
}

// Close wakes all subscribers; their Recv returns ErrClosed once drained.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.wake)
}

// Subscription is one reader's cursor into the hub. It must not be used
// from more than one goroutine at a time.
type Subscription[T any] struct {
	hub    *Hub[T]
	next   uint64
	closed bool
}

// Recv returns the next value, blocking until one is published, ctx is done
// or the hub is closed. When values were overwritten before being read, Recv
// returns a *LaggedError and the following call continues with the oldest
// retained value.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	h := s.hub
	for {
		h.mu.Lock()
		if s.closed {
			h.mu.Unlock()
			return zero, ErrClosed
		}

		capacity := uint64(len(h.ring))
		if h.head > capacity && s.next < h.head-capacity {
			oldest := h.head - capacity
			missed := oldest - s.next
			s.next = oldest
			h.mu.Unlock()
			return zero, &LaggedError{Missed: missed}
		}

		if s.next < h.head {
			v := h.ring[s.next%capacity]
			s.next++
			h.mu.Unlock()
			return v, nil
		}

		if h.closed {
			h.mu.Unlock()
			return zero, ErrClosed
		}
		wake := h.wake
		h.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the subscription from the hub.
func (s *Subscription[T]) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	h.subscribers--
}
