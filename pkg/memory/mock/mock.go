// Package mock provides an in-memory test double for memory.Journal.
//
// Journal keeps recorded turns in a slice and answers Recent and Search with
// simple filtering, so tests can assert on what a session journaled.
//
//	j := &mock.Journal{}
//	// inject j into the system under test …
//	if got := len(j.Turns()); got != 1 {
//	    t.Errorf("expected 1 turn, got %d", got)
//	}
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/groovi/groovi/pkg/memory"
)

var _ memory.Journal = (*Journal)(nil)

// Journal is a mock implementation of memory.Journal.
type Journal struct {
	mu sync.Mutex

	// RecordErr, if non-nil, is returned by Record and the turn is dropped.
	RecordErr error

	turns []memory.Turn
}

// Record implements memory.Journal.
func (j *Journal) Record(_ context.Context, turn memory.Turn) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.RecordErr != nil {
		return j.RecordErr
	}
	j.turns = append(j.turns, turn)
	return nil
}

// Recent implements memory.Journal.
func (j *Journal) Recent(_ context.Context, sessionID string, d time.Duration) ([]memory.Turn, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cutoff := time.Now().Add(-d)
	var out []memory.Turn
	for _, t := range j.turns {
		if t.SessionID == sessionID && t.Timestamp.After(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Search implements memory.Journal with a case-insensitive substring match.
func (j *Journal) Search(_ context.Context, query string, opts memory.SearchOpts) ([]memory.Turn, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	q := strings.ToLower(query)
	var out []memory.Turn
	for i := len(j.turns) - 1; i >= 0; i-- {
		t := j.turns[i]
		if opts.SessionID != "" && t.SessionID != opts.SessionID {
			continue
		}
		if opts.Intent != "" && t.Intent != opts.Intent {
			continue
		}
		if !opts.After.IsZero() && !t.Timestamp.After(opts.After) {
			continue
		}
		if !strings.Contains(strings.ToLower(t.Transcript+" "+t.Response), q) {
			continue
		}
		out = append(out, t)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Turns returns a copy of every recorded turn.
func (j *Journal) Turns() []memory.Turn {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]memory.Turn(nil), j.turns...)
}
