// Package dispatch decides what a transcribed utterance is and what to say
// back.
//
// A [Dispatcher] classifies each transcript as a pause command, a music
// request, or conversation. Pause commands are recognised by whole-word
// keyword match. Music versus conversation is decided by the conversational
// LLM itself: its system prompt asks it to prefix direct music commands with
// [PlaySentinel], so one completion both classifies and replies. When no LLM
// is configured or the call fails, keyword matching and canned replies take
// over.
//
// The Dispatcher also owns the session's conversation [History], produces the
// filler line spoken while the music agent works, and builds the agent query
// from recent turns.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/types"
)

// Intent is the classification of one transcript.
type Intent int

const (
	IntentChat Intent = iota
	IntentPause
	IntentMusic
)

// String returns the lowercase intent name.
func (i Intent) String() string {
	switch i {
	case IntentPause:
		return "pause"
	case IntentMusic:
		return "music"
	default:
		return "chat"
	}
}

// Turn is the result of [Dispatcher.Classify].
type Turn struct {
	Intent Intent

	// Reply is the text to speak for chat and pause turns. For music turns it
	// is the LLM's acknowledgement with the sentinel stripped, and may be
	// empty.
	Reply string
}

const (
	replyMaxTokens   = 100
	fillerMaxTokens  = 30
	replyTemperature = 0.7
	fillerHistory    = 4
	agentHistory     = 6
)

var errNoLLM = errors.New("dispatch: no llm configured")

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithHistorySize sets the capacity of the conversation ring.
func WithHistorySize(n int) Option {
	return func(d *Dispatcher) { d.history = NewHistory(n) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics records dialogue and filler completions on m as "llm"
// provider calls.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher classifies transcripts and produces replies. One Dispatcher
// belongs to one session.
type Dispatcher struct {
	llm     llm.Provider
	history *History
	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates a Dispatcher. l may be nil, in which case every decision falls
// back to keyword matching and canned replies.
func New(l llm.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{llm: l}
	for _, o := range opts {
		o(d)
	}
	if d.history == nil {
		d.history = NewHistory(DefaultHistorySize)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// History returns the conversation ring.
func (d *Dispatcher) History() *History { return d.history }

// Classify decides the intent of transcript. It does not modify the history.
func (d *Dispatcher) Classify(ctx context.Context, transcript string) Turn {
	if IsPause(transcript) {
		return Turn{Intent: IntentPause, Reply: PauseReply}
	}

	reply, err := d.complete(ctx, transcript)
	if err != nil {
		d.log.Warn("dispatch: llm unavailable, using keyword classification", "err", err)
		if IsMusicRequest(transcript) {
			return Turn{Intent: IntentMusic}
		}
		return Turn{Intent: IntentChat, Reply: Canned(transcript)}
	}

	if rest, ok := strings.CutPrefix(reply, PlaySentinel); ok {
		return Turn{Intent: IntentMusic, Reply: strings.TrimSpace(rest)}
	}
	if reply == "" {
		return Turn{Intent: IntentChat, Reply: Canned(transcript)}
	}
	return Turn{Intent: IntentChat, Reply: reply}
}

// Respond returns a conversational reply to transcript. It never fails: any
// LLM error or empty reply yields the canned response. A session does not
// need it: [Dispatcher.Classify] already carries the same reply in
// [Turn.Reply] for chat turns, from the one completion that also decided the
// intent. Respond is for callers that know the turn is conversation.
func (d *Dispatcher) Respond(ctx context.Context, transcript string) string {
	reply, err := d.complete(ctx, transcript)
	if err != nil {
		d.log.Warn("dispatch: llm reply failed, using canned response", "err", err)
		return Canned(transcript)
	}
	reply = strings.TrimSpace(strings.TrimPrefix(reply, PlaySentinel))
	if reply == "" {
		return Canned(transcript)
	}
	return reply
}

// complete runs the conversational completion over the history plus
// transcript and returns the trimmed reply.
func (d *Dispatcher) complete(ctx context.Context, transcript string) (string, error) {
	if d.llm == nil {
		return "", errNoLLM
	}
	msgs := append(d.history.Messages(), types.Message{Role: types.RoleUser, Content: transcript})
	ctx, done := observe.TraceProvider(ctx, d.metrics, "dialogue", "llm")
	resp, err := d.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     msgs,
		MaxTokens:    replyMaxTokens,
		Temperature:  replyTemperature,
	})
	done(err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Filler returns a short line acknowledging a music request, generated from
// the last few turns. Falls back to [FillerFallback].
func (d *Dispatcher) Filler(ctx context.Context, transcript string) string {
	if d.llm == nil {
		return FillerFallback
	}
	msgs := append(d.history.Last(fillerHistory), types.Message{Role: types.RoleUser, Content: transcript})
	ctx, done := observe.TraceProvider(ctx, d.metrics, "filler", "llm")
	resp, err := d.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fillerPrompt,
		Messages:     msgs,
		MaxTokens:    fillerMaxTokens,
		Temperature:  replyTemperature,
	})
	done(err)
	if err != nil {
		d.log.Warn("dispatch: filler generation failed", "err", err)
		return FillerFallback
	}
	filler := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(resp.Content), PlaySentinel))
	if filler == "" {
		return FillerFallback
	}
	return filler
}

// AgentQuery builds the music agent's query. Earlier user requests among the
// last six turns, excluding the latest user turn, are joined as context:
// "<ctx> | Current request: <transcript>".
func (d *Dispatcher) AgentQuery(transcript string) string {
	var users []string
	for _, m := range d.history.Last(agentHistory) {
		if m.Role == types.RoleUser {
			users = append(users, m.Content)
		}
	}
	if len(users) < 2 {
		return transcript
	}
	return strings.Join(users[:len(users)-1], " | ") + " | Current request: " + transcript
}
