// Package postgres implements the queue backend on a Postgres table.
// Dequeue claims rows with FOR UPDATE SKIP LOCKED so multiple consumers can
// share one queue without double delivery.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/queue"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS agent_queue (
		id          UUID PRIMARY KEY,
		session_id  TEXT NOT NULL,
		payload     TEXT NOT NULL,
		priority    INT NOT NULL DEFAULT 0,
		enqueued_at TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS agent_queue_order_idx
		ON agent_queue (priority DESC, enqueued_at ASC)`,
}

// Options configure the Postgres backend.
type Options struct {
	// PollInterval is the wait between empty polls while blocking.
	PollInterval time.Duration
}

// Backend is a Postgres-backed queue.
type Backend struct {
	pool *pgxpool.Pool
	poll time.Duration
}

// New creates a backend over an existing pool.
func New(pool *pgxpool.Pool, optFns ...func(o *Options)) *Backend {
	opts := Options{PollInterval: 100 * time.Millisecond}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{pool: pool, poll: opts.PollInterval}
}

// Migrate creates the queue table and ordering index.
func (b *Backend) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return core.Transient("postgres.migrate", err)
		}
	}
	return nil
}

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, msg queue.Message) error {
	var expires *time.Time
	if !msg.ExpiresAt.IsZero() {
		expires = &msg.ExpiresAt
	}
	_, err := b.pool.Exec(ctx,
		`INSERT INTO agent_queue (id, session_id, payload, priority, enqueued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SessionID, msg.Payload, msg.Priority, msg.EnqueuedAt, expires,
	)
	return core.Transient("postgres.enqueue", err)
}

// Dequeue implements queue.Backend. One DELETE claims and removes the best
// eligible row; SKIP LOCKED keeps concurrent consumers from colliding.
func (b *Backend) Dequeue(ctx context.Context, wait time.Duration) (queue.Message, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		msg, ok, err := b.claim(ctx)
		if err != nil {
			return queue.Message{}, false, err
		}
		if ok {
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

func (b *Backend) claim(ctx context.Context) (queue.Message, bool, error) {
	var (
		msg     queue.Message
		expires *time.Time
	)
	err := b.pool.QueryRow(ctx,
		`DELETE FROM agent_queue
		 WHERE id = (
			SELECT id FROM agent_queue
			WHERE expires_at IS NULL OR expires_at > now()
			ORDER BY priority DESC, enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		 )
		 RETURNING id, session_id, payload, priority, enqueued_at, expires_at`,
	).Scan(&msg.ID, &msg.SessionID, &msg.Payload, &msg.Priority, &msg.EnqueuedAt, &expires)
	if err == pgx.ErrNoRows {
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, core.Transient("postgres.dequeue", err)
	}
	if expires != nil {
		msg.ExpiresAt = *expires
	}
	return msg, true, nil
}

// Len implements queue.Backend, counting unexpired rows.
func (b *Backend) Len(ctx context.Context) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx,
		`SELECT count(*) FROM agent_queue WHERE expires_at IS NULL OR expires_at > now()`,
	).Scan(&n)
	if err != nil {
		return 0, core.Transient("postgres.len", err)
	}
	return n, nil
}

// Close implements queue.Backend.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}
