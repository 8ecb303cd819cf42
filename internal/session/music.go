package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/internal/dispatch"
	"github.com/groovi/groovi/pkg/memory"
	"github.com/groovi/groovi/pkg/types"
)

// Apologies spoken when a music request cannot be served.
const (
	ApologySearchFailed = "I had trouble searching Spotify. Try clicking the button instead!"
	ApologyNoTracks     = "Sorry, I couldn't find songs for that. Try describing your mood differently."
	ApologyCrashed      = "Something went wrong while searching. Try the click mode!"
	ApologyUnavailable  = "Music search isn't available right now. Try the click mode instead!"
)

// historyTrackLimit is how many tracks are named in the history line.
const historyTrackLimit = 3

// errAgentPanic marks a recovered panic in the search goroutine.
var errAgentPanic = errors.New("session: music agent panicked")

// search is a music agent run in flight.
type search struct {
	done   chan searchOutcome
	cancel context.CancelFunc

	transcript string
	filler     string
	start      time.Time
}

type searchOutcome struct {
	result agent.Result
	err    error
}

// music handles a music request: filler speech runs while the agent
// searches in its own goroutine.
func (s *Session) music(ctx context.Context, text string, start time.Time) {
	h := s.dispatch.History()
	h.Add(types.RoleUser, text)
	s.send(AgentStarted())

	if s.p.Agent == nil {
		s.log.Warn("music request without a configured agent")
		s.apologise(ctx, ApologyUnavailable)
		s.record(ctx, memory.Turn{Transcript: text, Intent: dispatch.IntentMusic.String(), Response: ApologyUnavailable}, start)
		return
	}

	query := s.dispatch.AgentQuery(text)
	filler := s.dispatch.Filler(ctx, text)
	h.Add(types.RoleAssistant, filler)
	s.send(Response(filler))

	s.setMode(ModeResponding)
	s.startSpeech(ctx, filler, speechFiller)
	s.startSearch(ctx, query, text, filler, start)
}

func (s *Session) startSearch(ctx context.Context, query, text, filler string, start time.Time) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AgentTimeout)
	sr := &search{
		done:       make(chan searchOutcome, 1),
		cancel:     cancel,
		transcript: text,
		filler:     filler,
		start:      start,
	}
	s.search = sr
	s.log.Info("music search started", "query", query)

	searcher := s.p.Agent
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sr.done <- searchOutcome{err: fmt.Errorf("%w: %v", errAgentPanic, r)}
			}
		}()
		res, err := searcher.Run(actx, query)
		sr.done <- searchOutcome{result: res, err: err}
	}()
}

// finishSearch stops the filler and reports the agent's outcome.
func (s *Session) finishSearch(ctx context.Context, o searchOutcome) {
	sr := s.search
	s.search = nil
	deadline := errors.Is(o.err, context.DeadlineExceeded)
	sr.cancel()
	s.stopSpeech()

	if ctx.Err() != nil {
		return
	}

	turn := memory.Turn{
		Transcript: sr.transcript,
		Intent:     dispatch.IntentMusic.String(),
		Response:   sr.filler,
	}
	defer func() { s.record(ctx, turn, sr.start) }()

	var apology string
	switch {
	case errors.Is(o.err, errAgentPanic), deadline:
		apology = ApologyCrashed
	case o.err != nil:
		apology = ApologySearchFailed
	case len(o.result.Tracks) == 0:
		apology = ApologyNoTracks
	}
	if apology != "" {
		s.log.Warn("music search failed", "err", o.err, "apology", apology)
		turn.Summary = apology
		s.apologise(ctx, apology)
		return
	}

	res := o.result
	s.log.Info("music search finished", "tracks", len(res.Tracks), "mood", res.Mood, "iterations", res.Iterations)
	s.dispatch.History().Add(types.RoleAssistant, historyLine(res))
	turn.Summary = res.Summary
	turn.TrackCount = len(res.Tracks)

	s.send(Songs(res.Summary, res.Tracks))
	s.enterAwaitingWake()
	s.send(MusicPlaying())
}

// apologise speaks msg as a normal reply. Apologies stay out of the history.
func (s *Session) apologise(ctx context.Context, msg string) {
	s.send(Response(msg))
	s.speakReply(ctx, msg)
}

// historyLine summarises a result for the conversation history:
// "<summary> Tracks: A by X, B by Y, C by Z".
func historyLine(res agent.Result) string {
	n := min(len(res.Tracks), historyTrackLimit)
	names := make([]string, 0, n)
	for _, t := range res.Tracks[:n] {
		names = append(names, t.Name+" by "+t.Artist)
	}
	return strings.TrimSpace(res.Summary + " Tracks: " + strings.Join(names, ", "))
}
