package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/internal/session"
	"github.com/groovi/groovi/internal/transport/ws"
)

// ErrTooManySessions is returned by [SessionManager.Open] when the configured
// session limit is reached.
var ErrTooManySessions = errors.New("session limit reached")

// ErrUnknownSession is returned by [SessionManager.Stop] for an ID that is
// not running.
var ErrUnknownSession = errors.New("no such session")

// SessionInfo describes a running session.
type SessionInfo struct {
	SessionID string
	StartedAt time.Time
	Mode      session.Mode
}

type running struct {
	sess    *session.Session
	started time.Time
	cancel  context.CancelFunc
}

// SessionManager creates one voice session per websocket connection and
// tracks the live ones. New sessions use the most recently applied
// [session.Config]; running sessions keep the one they started with.
//
// All methods are safe for concurrent use.
type SessionManager struct {
	providers session.Providers
	metrics   *observe.Metrics
	log       *slog.Logger
	limit     int
	now       func() time.Time

	seq atomic.Uint64

	mu       sync.Mutex
	cfg      session.Config
	sessions map[string]*running
	closed   bool
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Providers session.Providers
	Session   session.Config
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	// Limit caps concurrent sessions. Zero means unlimited.
	Limit int
}

// NewSessionManager returns an empty SessionManager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		providers: cfg.Providers,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		limit:     cfg.Limit,
		now:       time.Now,
		cfg:       cfg.Session,
		sessions:  make(map[string]*running),
	}
	if sm.log == nil {
		sm.log = slog.Default()
	}
	return sm
}

// SetConfig replaces the configuration used for sessions opened from now on.
func (sm *SessionManager) SetConfig(cfg session.Config) {
	sm.mu.Lock()
	sm.cfg = cfg
	sm.mu.Unlock()
}

// Config returns the configuration new sessions will use.
func (sm *SessionManager) Config() session.Config {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cfg
}

// Open creates a session and registers it. The session is removed again when
// its Run returns. Open implements [ws.Opener].
func (sm *SessionManager) Open(_ context.Context) (ws.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, errors.New("app: session manager is shut down")
	}
	if sm.limit > 0 && len(sm.sessions) >= sm.limit {
		return nil, fmt.Errorf("app: open session: %w (%d)", ErrTooManySessions, sm.limit)
	}

	now := sm.now().UTC()
	id := fmt.Sprintf("s-%s-%04d", now.Format("20060102T150405Z"), sm.seq.Add(1))

	opts := []session.Option{session.WithLogger(sm.log)}
	if sm.metrics != nil {
		opts = append(opts, session.WithMetrics(sm.metrics))
	}
	sess, err := session.New(id, sm.providers, sm.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: open session: %w", err)
	}
	sm.sessions[id] = &running{sess: sess, started: now}
	sm.log.Debug("session opened", "session_id", id)
	return &tracked{Session: sess, sm: sm}, nil
}

// tracked runs a session under a cancel func owned by the manager.
type tracked struct {
	*session.Session
	sm *SessionManager
}

func (t *tracked) Run(ctx context.Context, in <-chan session.Input, out func(session.Event)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer t.sm.remove(t.ID())

	t.sm.mu.Lock()
	closed := t.sm.closed
	if r, ok := t.sm.sessions[t.ID()]; ok {
		r.cancel = cancel
	}
	t.sm.mu.Unlock()
	if closed {
		return context.Canceled
	}

	return t.Session.Run(ctx, in, out)
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	r, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		sm.log.Info("session ended", "session_id", id, "duration", sm.now().UTC().Sub(r.started).Round(time.Millisecond))
	}
}

// Stop cancels the running session id.
func (sm *SessionManager) Stop(id string) error {
	sm.mu.Lock()
	r, ok := sm.sessions[id]
	var cancel context.CancelFunc
	if ok {
		cancel = r.cancel
	}
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("app: stop %q: %w", id, ErrUnknownSession)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Active lists the open sessions ordered by start time.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sm.sessions))
	for _, id := range slices.Sorted(maps.Keys(sm.sessions)) {
		r := sm.sessions[id]
		infos = append(infos, SessionInfo{SessionID: id, StartedAt: r.started, Mode: r.sess.Mode()})
	}
	slices.SortStableFunc(infos, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return infos
}

// Shutdown refuses new sessions, cancels the running ones and waits until
// they have ended or ctx expires.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	for _, r := range sm.sessions {
		if r.cancel != nil {
			r.cancel()
		}
	}
	sm.mu.Unlock()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for sm.Count() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("app: %d sessions still running: %w", sm.Count(), ctx.Err())
		case <-tick.C:
		}
	}
	return nil
}
