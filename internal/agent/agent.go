// Package agent defines the Searcher interface used by a voice session to
// turn a spoken music request into a list of tracks, along with the result
// type shared by its implementations.
//
// The concrete tool-using search lives in the music subpackage. Sessions only
// see [Searcher], so tests can substitute the mock subpackage.
package agent

import (
	"context"

	"github.com/groovi/groovi/pkg/types"
)

// Result is the outcome of one music search.
type Result struct {
	// Tracks are the recommended tracks, best first.
	Tracks []types.Track `json:"tracks"`

	// Mood is the vibe the search settled on, e.g. "chill" or "curated".
	Mood string `json:"mood"`

	// Summary is a one-sentence explanation spoken or shown to the user.
	Summary string `json:"summary"`

	// Iterations is the number of LLM rounds the search used. Zero for
	// results that did not involve the LLM.
	Iterations int `json:"iterations,omitempty"`
}

// Searcher finds tracks matching a natural-language request.
//
// Run must return promptly when ctx is cancelled. An empty Tracks slice with a
// nil error means the search completed but found nothing.
type Searcher interface {
	Run(ctx context.Context, query string) (Result, error)
}
