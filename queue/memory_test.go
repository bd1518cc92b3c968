package queue

import (
	"context"
	"testing"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityThenFIFO(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "low-a", 1)))
	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "high", 5)))
	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "low-b", 1)))

	var got []string
	for i := 0; i < 3; i++ {
		msg, ok, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, msg.Payload)
	}
	assert.Equal(t, []string{"high", "low-a", "low-b"}, got)
}

func TestDequeueTimesOutWhenEmpty(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	start := time.Now()
	_, ok, err := q.Dequeue(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(ctx, NewMessage("s1", "wake", 0))
	}()

	start := time.Now()
	msg, ok, err := q.Dequeue(ctx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wake", msg.Payload)
	// Woken by the enqueue signal, long before the wait budget expires.
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := NewMemory(func(o *MemoryOptions) { o.MaxSize = 2 })
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "a", 0)))
	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "b", 0)))
	assert.ErrorIs(t, q.Enqueue(ctx, NewMessage("s1", "c", 0)), core.ErrQueueFull)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExpiredMessagesAreDiscarded(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	stale := NewMessage("s1", "stale", 9)
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, q.Enqueue(ctx, stale))
	require.NoError(t, q.Enqueue(ctx, NewMessage("s1", "fresh", 0)))

	msg, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", msg.Payload)
}

func TestDequeueHonorsContextCancel(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, ok, err := q.Dequeue(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseUnblocksConsumers(t *testing.T) {
	q := NewMemory()
	done := make(chan struct{})
	go func() {
		_, ok, err := q.Dequeue(context.Background(), 5*time.Second)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrClosed)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer not released by Close")
	}
}

func TestClosedQueueRejectsOperations(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(ctx, NewMessage("s1", "late", 0)), ErrClosed)

	// Immediate, not after the wait budget: consumers must be able to stop.
	start := time.Now()
	_, ok, err := q.Dequeue(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Less(t, time.Since(start), time.Second)
}
