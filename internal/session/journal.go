package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/groovi/groovi/pkg/memory"
)

// JournalGuard wraps a [memory.Journal] and makes every operation non-fatal.
// Failures are logged and swallowed; reads return empty results. A nil inner
// journal turns the guard into a no-op.
//
// IsDegraded reports whether the most recent operation failed.
//
// All methods are safe for concurrent use.
type JournalGuard struct {
	inner    memory.Journal
	log      *slog.Logger
	degraded atomic.Bool
}

// NewJournalGuard wraps j. l may be nil.
func NewJournalGuard(j memory.Journal, l *slog.Logger) *JournalGuard {
	if l == nil {
		l = slog.Default()
	}
	return &JournalGuard{inner: j, log: l}
}

// Record appends turn. Errors are logged and swallowed.
func (g *JournalGuard) Record(ctx context.Context, turn memory.Turn) error {
	if g.inner == nil {
		return nil
	}
	if err := g.inner.Record(ctx, turn); err != nil {
		g.degraded.Store(true)
		g.log.Warn("journal: record failed, swallowing error",
			"session_id", turn.SessionID,
			"intent", turn.Intent,
			"err", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Recent returns recent turns, or an empty slice on failure.
func (g *JournalGuard) Recent(ctx context.Context, sessionID string, d time.Duration) ([]memory.Turn, error) {
	if g.inner == nil {
		return []memory.Turn{}, nil
	}
	turns, err := g.inner.Recent(ctx, sessionID, d)
	if err != nil {
		g.degraded.Store(true)
		g.log.Warn("journal: recent failed, returning empty", "session_id", sessionID, "err", err)
		return []memory.Turn{}, nil
	}
	g.degraded.Store(false)
	return turns, nil
}

// Search runs a full-text query, or returns an empty slice on failure.
func (g *JournalGuard) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Turn, error) {
	if g.inner == nil {
		return []memory.Turn{}, nil
	}
	turns, err := g.inner.Search(ctx, query, opts)
	if err != nil {
		g.degraded.Store(true)
		g.log.Warn("journal: search failed, returning empty", "query", query, "err", err)
		return []memory.Turn{}, nil
	}
	g.degraded.Store(false)
	return turns, nil
}

// IsDegraded reports whether the last journal operation failed.
func (g *JournalGuard) IsDegraded() bool {
	return g.degraded.Load()
}

var _ memory.Journal = (*JournalGuard)(nil)
