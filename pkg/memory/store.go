// Package memory defines the turn journal: a persistent, time-ordered log of
// every voice turn a session handled.
//
// The journal is write-mostly. Sessions append one [Turn] per completed
// dispatch; operators and tests read them back by session or by full-text
// search. Journal failures never affect a live session.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Turn is one handled utterance.
type Turn struct {
	// SessionID identifies the websocket session that produced the turn.
	SessionID string

	// Transcript is the user's recognised speech.
	Transcript string

	// Intent is the dispatcher's classification ("pause", "music", "chat").
	Intent string

	// Response is the text spoken back, or the filler for music turns.
	Response string

	// Summary is the agent's result summary for music turns.
	Summary string

	// TrackCount is the number of tracks returned to the client.
	TrackCount int

	// Timestamp is when the turn was dispatched.
	Timestamp time.Time

	// Duration is the wall time from end of speech to dispatch completion.
	Duration time.Duration
}

// SearchOpts configures a journal search. All non-zero fields are applied
// as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	SessionID string

	// Intent restricts results to one classification.
	Intent string

	// After filters turns recorded after this instant (exclusive).
	After time.Time

	// Limit caps the number of results. 0 lets the implementation choose.
	Limit int
}

// Journal is the persistent turn log.
type Journal interface {
	// Record appends a turn.
	Record(ctx context.Context, turn Turn) error

	// Recent returns turns for sessionID recorded within the last d, oldest
	// first.
	Recent(ctx context.Context, sessionID string, d time.Duration) ([]Turn, error)

	// Search runs a full-text query over transcripts and responses, newest
	// first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Turn, error)
}
