package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription[int]) (int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.Recv(ctx)
}

func TestHub_DeliversInOrder(t *testing.T) {
	h := New[int](4)
	sub := h.Subscribe()
	defer sub.Close()

	for i := 1; i <= 3; i++ {
		assert.Equal(t, 1, h.Publish(i))
	}
	for i := 1; i <= 3; i++ {
		v, err := recv(t, sub)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestHub_OnlyValuesAfterSubscribe(t *testing.T) {
	h := New[int](4)
	h.Publish(1)

	sub := h.Subscribe()
	defer sub.Close()
	h.Publish(2)

	v, err := recv(t, sub)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestHub_EverySubscriberGetsEveryValue(t *testing.T) {
	h := New[int](8)
	a, b := h.Subscribe(), h.Subscribe()
	defer a.Close()
	defer b.Close()

	assert.Equal(t, 2, h.Publish(7))
	for _, s := range []*Subscription[int]{a, b} {
		v, err := recv(t, s)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
}

func TestHub_LagThenResume(t *testing.T) {
	h := New[int](DefaultCapacity)
	sub := h.Subscribe()
	defer sub.Close()

	// Publisher must not block on a subscriber that never reads.
	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultCapacity+5; i++ {
			h.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	_, err := recv(t, sub)
	var lagged *LaggedError
	require.ErrorAs(t, err, &lagged)
	assert.Equal(t, uint64(5), lagged.Missed)

	// Resumes from the oldest retained value.
	for want := 5; want < DefaultCapacity+5; want++ {
		v, err := recv(t, sub)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestHub_RecvBlocksUntilPublish(t *testing.T) {
	h := New[int](2)
	sub := h.Subscribe()
	defer sub.Close()

	got := make(chan int, 1)
	go func() {
		v, err := sub.Recv(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	h.Publish(42)

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up")
	}
}

func TestHub_RecvHonoursContext(t *testing.T) {
	h := New[int](2)
	sub := h.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHub_CloseDrainsThenErrClosed(t *testing.T) {
	h := New[int](4)
	sub := h.Subscribe()
	h.Publish(1)
	h.Close()

	assert.Equal(t, 0, h.Publish(2), "publish after close is dropped")

	v, err := recv(t, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = recv(t, sub)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscription_Close(t *testing.T) {
	h := New[int](4)
	sub := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, h.Subscribers())

	_, err := recv(t, sub)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_ConcurrentPublishers(t *testing.T) {
	const publishers, perPublisher = 8, 50
	h := New[int](publishers * perPublisher)
	sub := h.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				h.Publish(i)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < publishers*perPublisher; i++ {
		_, err := recv(t, sub)
		require.NoError(t, err)
	}
}
