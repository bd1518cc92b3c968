package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/agentloop/agentloop/core"
)

// item is a heap entry; seq breaks priority ties in arrival order.
type item struct {
	msg Message
	seq uint64
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// MemoryOptions configure the in-memory backend.
type MemoryOptions struct {
	// MaxSize bounds the queue; Enqueue returns core.ErrQueueFull beyond it.
	MaxSize int
}

// Memory is the in-process queue backend. Blocked consumers are woken by a
// broadcast channel on every enqueue, so an idle Dequeue costs nothing
// until a message arrives or its wait budget runs out.
type Memory struct {
	mu     sync.Mutex
	items  itemHeap
	seq    uint64
	notify chan struct{}
	closed bool
	opts   MemoryOptions
}

// NewMemory creates an in-memory queue.
func NewMemory(optFns ...func(o *MemoryOptions)) *Memory {
	opts := MemoryOptions{MaxSize: 10000}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Memory{notify: make(chan struct{}), opts: opts}
}

// Enqueue implements Backend.
func (q *Memory) Enqueue(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.opts.MaxSize > 0 && len(q.items) >= q.opts.MaxSize {
		return core.ErrQueueFull
	}
	q.seq++
	heap.Push(&q.items, item{msg: msg, seq: q.seq})
	// Wake everyone blocked in Dequeue.
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// Dequeue implements Backend. Expired messages are discarded on the way out.
func (q *Memory) Dequeue(ctx context.Context, wait time.Duration) (Message, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Message{}, false, ErrClosed
		}
		now := time.Now()
		for q.items.Len() > 0 {
			it := heap.Pop(&q.items).(item)
			if it.msg.Expired(now) {
				continue
			}
			q.mu.Unlock()
			return it.msg, true, nil
		}
		notify := q.notify
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, false, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Message{}, false, ctx.Err()
		case <-timer.C:
			return Message{}, false, nil
		case <-notify:
			timer.Stop()
		}
	}
}

// Len implements Backend.
func (q *Memory) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), nil
}

// Close implements Backend and wakes all blocked consumers.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}

// Stats returns queue depth and capacity.
func (q *Memory) Stats() map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]any{
		"depth":    q.items.Len(),
		"max_size": q.opts.MaxSize,
	}
}
