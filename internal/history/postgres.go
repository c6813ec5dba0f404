package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS voice_sessions (
	id         TEXT PRIMARY KEY,
	ended_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS voice_messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES voice_sessions(id) ON DELETE CASCADE,
	seq         INT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS voice_messages_session_idx ON voice_messages (session_id, seq);
`

// PostgresStore persists transcripts to Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveSession writes the session row and its messages in one transaction.
// Re-saving a session replaces its messages.
func (s *PostgresStore) SaveSession(ctx context.Context, sessionID string, events []TranscriptEvent) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO voice_sessions (id) VALUES ($1)
		 ON CONFLICT (id) DO UPDATE SET ended_at = now()`, sessionID); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM voice_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session messages: %w", err)
	}

	for i, ev := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO voice_messages (id, session_id, seq, role, content, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			ev.ID, sessionID, i, string(ev.Role), ev.Text, ev.OccurredAt); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
