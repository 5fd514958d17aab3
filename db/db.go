// Package db is the gateway's row store adapter: pooled Postgres
// connections, schema bootstrap, and the transactional operations the
// rest of the gateway needs (turn insert + conversation-total update in
// one transaction, bucket upserts, soft delete/archive).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps a pooled *sql.DB. Connection pool sizing mirrors the
// teacher's low-footprint defaults; the sizes are fixed in Open.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dsn, verifies reachability, and sizes the
// connection pool. Callers must call InitSchema once at startup.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: conn}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email VARCHAR(255) UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	tier VARCHAR(20) NOT NULL DEFAULT 'free',
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_users_email_live ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title VARCHAR(255),
	total_tokens BIGINT NOT NULL DEFAULT 0,
	summary_context TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at TIMESTAMPTZ,
	archived_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_active
	ON conversations(user_id, last_message_at DESC)
	WHERE deleted_at IS NULL AND archived_at IS NULL;

CREATE TABLE IF NOT EXISTS turns (
	id UUID PRIMARY KEY,
	user_id UUID REFERENCES users(id) ON DELETE SET NULL,
	session_id VARCHAR(255),
	conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
	user_message TEXT NOT NULL,
	assistant_response TEXT,
	message_length INT NOT NULL DEFAULT 0,
	response_length INT NOT NULL DEFAULT 0,
	input_tokens INT NOT NULL DEFAULT 0,
	output_tokens INT NOT NULL DEFAULT 0,
	tokens_used INT NOT NULL DEFAULT 0,
	actual_cost_millicents BIGINT NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_turns_user_day ON turns(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_day_token_buckets (
	user_id UUID NOT NULL,
	date DATE NOT NULL,
	total_tokens_used BIGINT NOT NULL DEFAULT 0,
	request_count BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, date)
);

CREATE TABLE IF NOT EXISTS global_day_cost_buckets (
	date DATE PRIMARY KEY,
	total_cost_millicents BIGINT NOT NULL DEFAULT 0,
	total_requests BIGINT NOT NULL DEFAULT 0,
	total_tokens BIGINT NOT NULL DEFAULT 0,
	unique_users BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS global_day_seen_users (
	date DATE NOT NULL,
	user_id UUID NOT NULL,
	PRIMARY KEY (date, user_id)
);
`

// InitSchema creates every table the gateway needs if not already present.
// Production deployments are expected to supersede this with a migration
// tool; it exists so the gateway is runnable standalone.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
