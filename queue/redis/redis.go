// Package redis implements the queue backend on a Redis sorted set. The
// score encodes priority and arrival order so ZPOPMIN yields the
// highest-priority, oldest message first.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/queue"
)

// seqSpan leaves room for 1e12 arrivals per priority level before scores
// of adjacent levels could overlap.
const seqSpan = 1e12

// Options configure the Redis backend.
type Options struct {
	// Key is the sorted set holding the queue.
	Key string
	// PollInterval is the wait between empty polls while blocking. Redis
	// has no push signal for sorted sets, so a short poll bounds latency.
	PollInterval time.Duration
}

// Backend is a Redis-backed queue.
type Backend struct {
	client *redis.Client
	key    string
	seqKey string
	poll   time.Duration
}

// New creates a backend over an existing client.
func New(client *redis.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{Key: "agentloop:queue", PollInterval: 100 * time.Millisecond}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{
		client: client,
		key:    opts.Key,
		seqKey: opts.Key + ":seq",
		poll:   opts.PollInterval,
	}
}

// Enqueue implements queue.Backend. The member is the JSON envelope; the
// score is -priority*seqSpan+seq, so lower scores pop first.
func (b *Backend) Enqueue(ctx context.Context, msg queue.Message) error {
	seq, err := b.client.Incr(ctx, b.seqKey).Result()
	if err != nil {
		return core.Transient("redis.enqueue", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	score := float64(-msg.Priority)*seqSpan + float64(seq)
	if err := b.client.ZAdd(ctx, b.key, redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return core.Transient("redis.enqueue", err)
	}
	return nil
}

// Dequeue implements queue.Backend with a bounded polling loop.
func (b *Backend) Dequeue(ctx context.Context, wait time.Duration) (queue.Message, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		entries, err := b.client.ZPopMin(ctx, b.key, 1).Result()
		if err != nil {
			return queue.Message{}, false, core.Transient("redis.dequeue", err)
		}
		if len(entries) > 0 {
			var msg queue.Message
			member, _ := entries[0].Member.(string)
			if err := json.Unmarshal([]byte(member), &msg); err != nil {
				return queue.Message{}, false, fmt.Errorf("decode message: %w", err)
			}
			if msg.Expired(time.Now()) {
				continue
			}
			return msg, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return queue.Message{}, false, nil
		}
		pause := b.poll
		if pause > remaining {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return queue.Message{}, false, ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Len implements queue.Backend.
func (b *Backend) Len(ctx context.Context) (int, error) {
	n, err := b.client.ZCard(ctx, b.key).Result()
	if err != nil {
		return 0, core.Transient("redis.len", err)
	}
	return int(n), nil
}

// Close implements queue.Backend.
func (b *Backend) Close() error {
	return b.client.Close()
}
