// Package ws is the websocket front door of a voice session.
//
// Each connection to GET /ws gets its own session. Binary frames from the
// client are 16 kHz mono s16le PCM chunks; text frames are JSON control
// messages such as {"event":"tts_complete"}. Every session event is sent back
// as one JSON text frame, audio included (base64 WAV in "data").
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/internal/session"
	"github.com/groovi/groovi/pkg/types"
)

const (
	// readLimit caps a single client frame. Clients send ~100 ms chunks
	// (3200 bytes); this leaves room for batching.
	readLimit = 1 << 20

	writeTimeout = 10 * time.Second
	outboxSize   = 32
)

// Session is the part of [session.Session] the transport drives.
type Session interface {
	ID() string
	Run(ctx context.Context, in <-chan session.Input, out func(session.Event)) error
}

// Opener creates the session for a new connection.
type Opener func(ctx context.Context) (Session, error)

// Handler upgrades requests to websockets and pumps frames between the
// client and a session.
type Handler struct {
	open    Opener
	origins []string
	log     *slog.Logger
}

// Option configures a [Handler].
type Option func(*Handler)

// WithAllowedOrigins sets the host patterns accepted for cross-origin
// requests, as understood by [websocket.AcceptOptions.OriginPatterns].
func WithAllowedOrigins(patterns []string) Option {
	return func(h *Handler) { h.origins = append([]string(nil), patterns...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler returns a Handler that opens sessions with open.
func NewHandler(open Opener, opts ...Option) *Handler {
	h := &Handler{open: open, log: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements http.Handler. It returns once the client disconnects
// or the session ends. Cancelling the request context (for instance through
// the server's BaseContext on shutdown) ends the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.open(ctx)
	if err != nil {
		observe.Logger(r.Context()).Error("open session", "err", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	log := h.log.With("session_id", sess.ID())
	log.Info("client connected", "remote", r.RemoteAddr)

	in := make(chan session.Input)
	outbox := make(chan session.Event, outboxSize)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		readLoop(ctx, conn, in, log)
	}()
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		writeLoop(ctx, conn, outbox, log)
	}()

	out := func(ev session.Event) {
		select {
		case outbox <- ev:
		case <-writeDone:
		}
	}
	runErr := sess.Run(ctx, in, out)
	close(outbox)
	<-writeDone

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Error("session ended with error", "err", runErr)
		conn.Close(websocket.StatusInternalError, "session error")
	}
	cancel()
	<-readDone
	log.Info("client disconnected")
}

// clientMessage is a text frame sent by the client.
type clientMessage struct {
	Event string `json:"event"`
}

// readLoop forwards client frames into in and closes it when the client goes
// away.
func readLoop(ctx context.Context, conn *websocket.Conn, in chan<- session.Input, log *slog.Logger) {
	defer close(in)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					log.Debug("websocket read ended", "err", err)
				}
			}
			return
		}

		var input session.Input
		switch typ {
		case websocket.MessageBinary:
			input = session.AudioInput(data)
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warn("malformed client message", "err", err)
				continue
			}
			if msg.Event != session.ClientTTSComplete {
				log.Warn("unknown client event", "event", msg.Event)
				continue
			}
			input = session.ClientEvent(msg.Event)
		default:
			continue
		}

		select {
		case in <- input:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop sends events until outbox is closed and drained, the context ends
// or a write fails.
func writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan session.Event, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-outbox:
			if !ok {
				return
			}
			msg, ok := Encode(ev)
			if !ok {
				log.Warn("dropping event of unknown kind", "kind", string(ev.Kind))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("websocket write failed", "event", msg.Event, "err", err)
				return
			}
		}
	}
}

// Message is the JSON object sent for every session event. Audio data is
// base64 encoded by encoding/json.
type Message struct {
	Event   string        `json:"event"`
	Text    string        `json:"text,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    []byte        `json:"data,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Songs   []types.Track `json:"songs,omitempty"`
}

// Encode maps ev to its wire form. It reports false for an unknown kind.
func Encode(ev session.Event) (Message, bool) {
	m := Message{Event: string(ev.Kind)}
	switch ev.Kind {
	case session.KindWakeWordDetected,
		session.KindListening,
		session.KindAgentStarted,
		session.KindTTSInterrupted,
		session.KindIdleTimeout,
		session.KindMusicPlaying:
	case session.KindTranscript, session.KindResponse:
		m.Text = ev.Text
	case session.KindAudio:
		m.Data = ev.Data
	case session.KindSongs:
		m.Summary = ev.Summary
		m.Songs = ev.Songs
	case session.KindError, session.KindVoiceModeStop:
		m.Message = ev.Message
	default:
		return Message{}, false
	}
	return m, true
}
