// Package app wires groovi's subsystems into a running server.
//
// New builds everything from a [config.Config] and the providers constructed
// by main: the turn journal, the MCP catalog host, the music agent, the
// session manager and the HTTP surface (/ws, /healthz, /readyz, /metrics).
// Run serves until its context is cancelled and Shutdown releases resources
// in reverse order.
//
// Tests inject doubles through the With* options; anything not injected is
// built from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/internal/agent/music"
	"github.com/groovi/groovi/internal/config"
	"github.com/groovi/groovi/internal/health"
	"github.com/groovi/groovi/internal/mcp"
	"github.com/groovi/groovi/internal/mcp/mcphost"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/internal/session"
	"github.com/groovi/groovi/internal/transport/ws"
	"github.com/groovi/groovi/pkg/memory"
	"github.com/groovi/groovi/pkg/memory/postgres"
	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/provider/stt"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/provider/vad"
	"github.com/groovi/groovi/pkg/provider/wake"
	"github.com/groovi/groovi/pkg/types"
)

// shutdownGrace bounds how long Run waits for sessions and in-flight HTTP
// requests after its context is cancelled.
const shutdownGrace = 10 * time.Second

// registerParallelism caps concurrent MCP server registrations.
const registerParallelism = 4

// Providers holds the constructed providers. Wake, VAD and STT are required;
// the rest degrade gracefully when nil.
type Providers struct {
	Wake     wake.Factory
	VAD      vad.Detector
	STT      stt.Provider
	TTS      tts.Provider
	LLM      llm.Provider
	AgentLLM llm.Provider
}

// App owns every subsystem's lifetime.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics

	host     mcp.Host
	journal  memory.Journal
	searcher agent.Searcher
	sessions *SessionManager
	checkers []health.Checker
	handler  http.Handler

	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithMCPHost injects the catalog host instead of building one from
// cfg.MCP.Servers.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.host = h }
}

// WithJournal injects the turn journal instead of connecting to postgres.
func WithJournal(j memory.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithSearcher injects the music search agent.
func WithSearcher(s agent.Searcher) Option {
	return func(a *App) { a.searcher = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New builds an App. Only missing required providers and a configured but
// unreachable journal database are fatal; a catalog server that cannot be
// reached is logged and the agent falls back to curated tracks.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	var missing []error
	if providers.Wake == nil {
		missing = append(missing, errors.New("wake provider is required"))
	}
	if providers.VAD == nil {
		missing = append(missing, errors.New("vad provider is required"))
	}
	if providers.STT == nil {
		missing = append(missing, errors.New("stt provider is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if err := a.initJournal(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	if err := a.initMCP(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}
	a.initAgent()

	a.sessions = NewSessionManager(SessionManagerConfig{
		Providers: session.Providers{
			Wake:    providers.Wake,
			VAD:     providers.VAD,
			STT:     providers.STT,
			TTS:     providers.TTS,
			LLM:     providers.LLM,
			Agent:   a.searcher,
			Journal: a.journal,
			Voice:   types.VoiceProfile{ID: cfg.TTS.Voice},
		},
		Session: SessionConfig(cfg),
		Metrics: a.metrics,
		Logger:  a.log,
	})
	a.handler = a.routes()
	return a, nil
}

// initJournal connects the postgres journal when a DSN is configured.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal == nil && a.cfg.Memory.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, a.cfg.Memory.PostgresDSN)
		if err != nil {
			return err
		}
		a.journal = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.log.Info("turn journal connected")
	}
	if p, ok := a.journal.(health.Pinger); ok {
		a.checkers = append(a.checkers, health.PingCheck("postgres", p))
	}
	return nil
}

// initMCP builds the catalog host, registers the curated builtin and connects
// every configured server concurrently.
func (a *App) initMCP(ctx context.Context) error {
	if a.host == nil {
		h := mcphost.New(mcphost.WithLogger(a.log), mcphost.WithMetrics(a.metrics))
		if err := music.RegisterCurated(h); err != nil {
			_ = h.Close()
			return err
		}
		a.host = h
		a.closers = append(a.closers, h.Close)
	}

	// A failed server is not fatal, so the group never cancels its peers.
	var g errgroup.Group
	g.SetLimit(registerParallelism)
	for _, srv := range a.cfg.MCP.Servers {
		g.Go(func() error {
			if err := a.host.RegisterServer(ctx, srv.ServerConfig()); err != nil {
				a.log.Warn("mcp server unavailable, catalog tools from it are disabled",
					"server", srv.Name, "err", err)
				return nil
			}
			a.log.Info("registered mcp server", "server", srv.Name, "transport", string(srv.Transport))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(a.cfg.MCP.Servers) > 0 {
		a.checkers = append(a.checkers, health.ToolsCheck("mcp", a.catalogTools))
	}
	return nil
}

// catalogTools counts the catalog tools the agent can call, ignoring the
// curated builtin.
func (a *App) catalogTools() int {
	n := 0
	for _, t := range a.host.AvailableTools() {
		if slices.Contains(music.CatalogTools, t.Name) {
			n++
		}
	}
	return n
}

func (a *App) initAgent() {
	if a.searcher != nil {
		return
	}
	opts := []music.Option{
		music.WithMaxIterations(a.cfg.Agent.MaxIterations),
		music.WithMaxTokens(a.cfg.Agent.MaxTokens),
		music.WithLogger(a.log),
		music.WithMetrics(a.metrics),
	}
	if a.cfg.Agent.Temperature > 0 {
		opts = append(opts, music.WithTemperature(a.cfg.Agent.Temperature))
	}
	a.searcher = music.New(a.providers.AgentLLM, a.host, opts...)
	if a.providers.AgentLLM == nil {
		a.log.Warn("no agent LLM configured; music requests get curated tracks")
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws.NewHandler(a.sessions.Open,
		ws.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		ws.WithLogger(a.log),
	))
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	mux.HandleFunc("GET /sessions", a.listSessions)
	return observe.Middleware(a.metrics)(mux)
}

type sessionJSON struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
}

func (a *App) listSessions(w http.ResponseWriter, _ *http.Request) {
	active := a.sessions.Active()
	out := make([]sessionJSON, len(active))
	for i, s := range active {
		out[i] = sessionJSON{ID: s.SessionID, Mode: s.Mode.String(), StartedAt: s.StartedAt}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": out})
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run listens on cfg.Server.ListenAddr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then stops accepting, ends the
// running sessions and waits up to shutdownGrace for them to finish.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		tls := a.cfg.Server.TLS
		a.log.Info("listening", "addr", ln.Addr().String(), "tls", tls != nil)
		if tls != nil {
			errc <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	err := errors.Join(srv.Shutdown(sctx), a.sessions.Shutdown(sctx))
	if e := <-errc; !errors.Is(e, http.ErrServerClosed) {
		err = errors.Join(err, e)
	}
	if err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

// ApplyConfig is the config watcher callback. The log level changes at once,
// session tunables apply to new sessions, everything else needs a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.SessionChanged {
		a.sessions.SetConfig(SessionConfig(new))
		a.log.Info("session settings updated for new sessions")
	}
	if d.ProvidersChanged {
		a.log.Warn("configuration change requires a restart", "sections", d.RestartSections)
	}
}

// Shutdown releases every subsystem in reverse construction order. Sessions
// are ended first. Remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				errs = append(errs, ctx.Err())
				return
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// close releases whatever New built before failing.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// SessionConfig converts the YAML session, agent and TTS sections into a
// [session.Config]. Zero values take the session package defaults.
func SessionConfig(cfg *config.Config) session.Config {
	sc := session.Config{
		IdleTimeout:      cfg.Session.IdleTimeout,
		WakeCooldown:     cfg.Session.WakeCooldown,
		HistorySize:      cfg.Session.HistorySize,
		SpeechThreshold:  cfg.Session.SpeechThreshold,
		SilenceFrames:    cfg.Session.SilenceFrames,
		BargeInThreshold: cfg.Session.BargeInThreshold,
		MinUtterance:     cfg.Session.MinUtterance,
		WakeAck:          cfg.Session.WakeAck,
		IdleTick:         cfg.Session.IdleTick,
		AgentTimeout:     cfg.Agent.Timeout,
		Segment:          cfg.TTS.Segment(),
	}
	if sc.WakeCooldown == 0 {
		sc.WakeCooldown = session.DefaultWakeCooldown
	}
	return sc
}
