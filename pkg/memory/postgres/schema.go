// Package postgres provides a PostgreSQL-backed memory.Journal.
//
// Turns are stored in a single table with a GIN full-text index over the
// transcript and response. [Migrate] creates the schema idempotently and is
// run by [NewStore].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Record(ctx, memory.Turn{SessionID: id, Transcript: "play jazz"})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS voice_turns (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    transcript   TEXT         NOT NULL,
    intent       TEXT         NOT NULL DEFAULT '',
    response     TEXT         NOT NULL DEFAULT '',
    summary      TEXT         NOT NULL DEFAULT '',
    track_count  INTEGER      NOT NULL DEFAULT 0,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_voice_turns_session_timestamp
    ON voice_turns (session_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_voice_turns_fts
    ON voice_turns USING GIN (to_tsvector('english', transcript || ' ' || response));
`

// Migrate creates the journal schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("postgres migrate: voice_turns: %w", err)
	}
	return nil
}
