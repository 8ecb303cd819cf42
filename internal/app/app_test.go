package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/groovi/groovi/internal/agent"
	agentmock "github.com/groovi/groovi/internal/agent/mock"
	"github.com/groovi/groovi/internal/agent/music"
	"github.com/groovi/groovi/internal/app"
	"github.com/groovi/groovi/internal/config"
	"github.com/groovi/groovi/internal/mcp"
	mcpmock "github.com/groovi/groovi/internal/mcp/mock"
	"github.com/groovi/groovi/internal/session"
	memorymock "github.com/groovi/groovi/pkg/memory/mock"
	sttmock "github.com/groovi/groovi/pkg/provider/stt/mock"
	ttsmock "github.com/groovi/groovi/pkg/provider/tts/mock"
	vadmock "github.com/groovi/groovi/pkg/provider/vad/mock"
	"github.com/groovi/groovi/pkg/provider/wake"
	wakemock "github.com/groovi/groovi/pkg/provider/wake/mock"
	"github.com/groovi/groovi/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Session: config.SessionConfig{
			IdleTimeout: 5 * time.Second,
		},
		TTS: config.TTSConfig{Voice: "en_US-amy"},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		Wake: func() (wake.Detector, error) { return &wakemock.Detector{}, nil },
		VAD:  &vadmock.Detector{},
		STT:  &sttmock.Provider{},
		TTS:  &ttsmock.Provider{},
	}
}

// newTestApp builds an App over doubles only: no postgres, no MCP servers.
func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, *mcpmock.Host) {
	t.Helper()
	host := &mcpmock.Host{}
	opts = append([]app.Option{
		app.WithMCPHost(host),
		app.WithJournal(&memorymock.Journal{}),
		app.WithSearcher(&agentmock.Searcher{Result: agent.Result{Summary: "ok"}}),
	}, opts...)

	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, host
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_MissingProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if err == nil {
		t.Fatal("expected error for missing providers")
	}
	for _, want := range []string{"wake", "vad", "stt"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNew_Probes(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	if rec := get(t, a.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
	if rec := get(t, a.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200 with no checkers", rec.Code)
	}
	if rec := get(t, a.Handler(), "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", rec.Code)
	}
}

func TestNew_RegistersMCPServers(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "spotify", Transport: mcp.TransportStdio, Command: "spotify-mcp"},
		{Name: "lastfm", Transport: mcp.TransportStreamableHTTP, URL: "http://localhost:9000/mcp"},
	}
	a, host := newTestApp(t, cfg)

	if got := len(host.Registered()); got != 2 {
		t.Fatalf("registered %d servers, want 2", got)
	}

	// The host exposes no catalog tools, so readiness fails on the mcp check.
	rec := get(t, a.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"mcp"`) {
		t.Errorf("body %s does not report the mcp check", rec.Body)
	}

	host.Tools = []types.ToolDefinition{{Name: music.CatalogTools[0]}, {Name: "unrelated"}}
	if rec := get(t, a.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz with catalog tools = %d, want 200", rec.Code)
	}
}

func TestNew_UnreachableServerIsNotFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MCP.Servers = []config.MCPServerConfig{{Name: "spotify", Transport: mcp.TransportStdio, Command: "missing"}}
	host := &mcpmock.Host{RegisterErr: errors.New("exec: not found")}

	_, err := app.New(context.Background(), cfg, testProviders(),
		app.WithMCPHost(host),
		app.WithSearcher(&agentmock.Searcher{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	sess, err := a.Sessions().Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := get(t, a.Handler(), "/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("/sessions = %d", rec.Code)
	}
	var body struct {
		Sessions []struct {
			ID   string `json:"id"`
			Mode string `json:"mode"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(body.Sessions))
	}
	if got := body.Sessions[0]; got.ID != sess.ID() || got.Mode != "AWAITING_WAKE" {
		t.Errorf("session = %+v", got)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	old := testConfig()
	a, _ := newTestApp(t, old, app.WithLevelVar(&level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Session.IdleTimeout = 9 * time.Second
	next.Server.ListenAddr = ":9999"
	a.ApplyConfig(old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if got := a.Sessions().Config().IdleTimeout; got != 9*time.Second {
		t.Errorf("new sessions idle timeout = %v, want 9s", got)
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Agent.Timeout = 12 * time.Second
	cfg.Session.HistorySize = 8
	sc := app.SessionConfig(cfg)

	if sc.WakeCooldown != session.DefaultWakeCooldown {
		t.Errorf("WakeCooldown = %v, want default %v", sc.WakeCooldown, session.DefaultWakeCooldown)
	}
	if sc.AgentTimeout != 12*time.Second {
		t.Errorf("AgentTimeout = %v", sc.AgentTimeout)
	}
	if sc.HistorySize != 8 || sc.IdleTimeout != 5*time.Second {
		t.Errorf("session fields not copied: %+v", sc)
	}

	cfg.Session.WakeCooldown = 500 * time.Millisecond
	if got := app.SessionConfig(cfg).WakeCooldown; got != 500*time.Millisecond {
		t.Errorf("explicit WakeCooldown = %v", got)
	}
}

func TestServe_EndsSessionsOnCancel(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx, ln) }()

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	conn, _, err := websocket.Dial(dctx, "ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for a.Sessions().Count() != 1 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, _, err := conn.Read(dctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("client read after shutdown: %v, want normal closure", err)
	}
	if n := a.Sessions().Count(); n != 0 {
		t.Errorf("%d sessions still registered", n)
	}
}

func TestShutdown_LeavesInjectedHostOpen(t *testing.T) {
	t.Parallel()
	a, host := newTestApp(t, testConfig())

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if host.Closed() {
		t.Error("injected host was closed by the app")
	}
	if _, err := a.Sessions().Open(context.Background()); err == nil {
		t.Error("Open succeeded after Shutdown")
	}
}
