// Package postgres implements the checkpoint sink on a Postgres table.
// Idempotency comes from the (session_id, iteration) primary key with
// ON CONFLICT DO NOTHING.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentloop/agentloop/core"
)

const schema = `CREATE TABLE IF NOT EXISTS agent_checkpoints (
	session_id TEXT NOT NULL,
	iteration  INT NOT NULL,
	id         UUID NOT NULL,
	status     TEXT NOT NULL,
	messages   JSONB NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, iteration)
)`

// Sink writes checkpoints to Postgres.
type Sink struct {
	pool *pgxpool.Pool
}

// New creates a sink over an existing pool.
func New(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// Migrate creates the checkpoint table.
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return core.Transient("postgres.migrate", err)
	}
	return nil
}

// Write implements checkpoint.Sink. A duplicate (session, iteration) write
// leaves the stored row untouched.
func (s *Sink) Write(ctx context.Context, cp core.Checkpoint) error {
	messages, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("encode checkpoint messages: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_checkpoints (session_id, iteration, id, status, messages, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, iteration) DO NOTHING`,
		cp.SessionID, cp.Iteration, cp.ID, string(cp.Status), messages, cp.Summary, cp.CreatedAt,
	)
	return core.Transient("postgres.checkpoint", err)
}

// Close implements checkpoint.Sink. The pool is owned by the caller.
func (s *Sink) Close() error { return nil }
