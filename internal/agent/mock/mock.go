// Package mock provides an in-memory test double for [agent.Searcher].
//
// Example:
//
//	s := &mock.Searcher{Result: agent.Result{Tracks: tracks, Summary: "Chill picks"}}
//	res, err := s.Run(ctx, "something chill")
package mock

import (
	"context"
	"sync"

	"github.com/groovi/groovi/internal/agent"
)

// Searcher is a configurable [agent.Searcher]. It is safe for concurrent use.
type Searcher struct {
	mu sync.Mutex

	// Result is returned by Run when Err is nil.
	Result agent.Result

	// Err is returned by Run when non-nil.
	Err error

	// Block makes Run wait for ctx cancellation (or Release) before returning.
	Block bool

	// Panic makes Run panic with this value.
	Panic any

	// Release, when non-nil and Block is set, unblocks Run once closed.
	Release chan struct{}

	queries []string
}

var _ agent.Searcher = (*Searcher)(nil)

// Run implements [agent.Searcher].
func (s *Searcher) Run(ctx context.Context, query string) (agent.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	block, release, p := s.Block, s.Release, s.Panic
	res, err := s.Result, s.Err
	s.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if block {
		select {
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		case <-release:
		}
	}
	return res, err
}

// Queries returns every query passed to Run, in call order.
func (s *Searcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// CallCount returns the number of Run calls.
func (s *Searcher) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}
