package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groovi/groovi/pkg/memory"
)

var _ memory.Journal = (*Store)(nil)

const defaultSearchLimit = 50

// Store is the PostgreSQL turn journal. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, pings it, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks the database connection. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements memory.Journal.
func (s *Store) Record(ctx context.Context, t memory.Turn) error {
	const q = `
		INSERT INTO voice_turns
		    (session_id, transcript, intent, response, summary, track_count, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		t.SessionID, t.Transcript, t.Intent, t.Response, t.Summary,
		t.TrackCount, ts, t.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent implements memory.Journal.
func (s *Store) Recent(ctx context.Context, sessionID string, d time.Duration) ([]memory.Turn, error) {
	const q = `
		SELECT session_id, transcript, intent, response, summary, track_count, timestamp, duration_ns
		FROM   voice_turns
		WHERE  session_id = $1
		  AND  timestamp >= $2
		ORDER  BY timestamp ASC`

	cutoff := time.Now().Add(-d).UTC()
	rows, err := s.pool.Query(ctx, q, sessionID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return turns, nil
}

// Search implements memory.Journal using plainto_tsquery over the transcript
// and response text.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Turn, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("to_tsvector('english', transcript || ' ' || response) @@ plainto_tsquery('english', $%d)", query)
	if opts.SessionID != "" {
		add("session_id = $%d", opts.SessionID)
	}
	if opts.Intent != "" {
		add("intent = $%d", opts.Intent)
	}
	if !opts.After.IsZero() {
		add("timestamp > $%d", opts.After.UTC())
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT session_id, transcript, intent, response, summary, track_count, timestamp, duration_ns
		FROM   voice_turns
		WHERE  %s
		ORDER  BY timestamp DESC
		LIMIT  $%d`, strings.Join(conds, " AND "), len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	return turns, nil
}

func scanTurn(row pgx.CollectableRow) (memory.Turn, error) {
	var (
		t   memory.Turn
		dur int64
	)
	err := row.Scan(&t.SessionID, &t.Transcript, &t.Intent, &t.Response, &t.Summary, &t.TrackCount, &t.Timestamp, &dur)
	t.Duration = time.Duration(dur)
	return t, err
}
