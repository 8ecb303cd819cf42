// Package mcphost provides the concrete implementation of the [mcp.Host]
// interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), keeps a
// concurrent-safe in-memory tool registry, and tracks each tool's latency
// through rolling-window percentiles.
//
// Typical usage:
//
//	h := mcphost.New(mcphost.WithMetrics(observe.DefaultMetrics()))
//
//	// Connect the music catalog server.
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "spotify",
//	    Transport: mcp.TransportStdio,
//	    Command:   "python -m spotify_mcp",
//	    Env:       map[string]string{"SPOTIFY_CLIENT_ID": id},
//	})
//
//	// Or register an in-process Go function.
//	h.RegisterBuiltin(mcphost.BuiltinTool{Definition: def, Handler: fn})
//
//	result, err := h.ExecuteTool(ctx, "search_tracks", `{"query":"lofi"}`)
//	h.Close()
package mcphost

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/groovi/groovi/internal/mcp"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/pkg/types"
)

// defaultWindowSize is the capacity of each tool's rolling latency window.
const defaultWindowSize = 100

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def          types.ToolDefinition
	serverName   string
	measurements *rollingWindow

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// Host is the concrete [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry             // key: tool name
	servers map[string]*mcpsdk.ClientSession // key: server name

	// client is shared by all server sessions.
	client *mcpsdk.Client

	logger  *slog.Logger
	metrics *observe.Metrics
}

var _ mcp.Host = (*Host)(nil)

// Option configures a [Host].
type Option func(*Host)

// WithLogger sets the logger used for connection and tool events.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithMetrics records every tool call on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// New creates and returns a ready-to-use Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]*mcpsdk.ClientSession),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "groovi-mcphost", Version: "1.0.0"},
			nil,
		),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and its tools are replaced.
//
// For [mcp.TransportStdio] cfg.Command is split on whitespace into executable
// and arguments, and cfg.Env is appended to the current process environment
// so that the child still sees PATH and HOME.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		// The process outlives ctx, which only bounds the handshake.
		cmd := exec.Command(executable, args...)
		cmd.Env = append(os.Environ(), envList(cfg.Env)...)
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	return h.connect(ctx, cfg.Name, transport)
}

// connect opens a session over transport and imports the server's tools.
func (h *Host) connect(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: failed to list tools for server %q: %w", name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[name]; ok {
		_ = old.Close()
		for toolName, t := range h.tools {
			if t.serverName == name {
				delete(h.tools, toolName)
			}
		}
	}
	h.servers[name] = session

	for _, t := range discovered {
		if prev, ok := h.tools[t.Name]; ok && prev.serverName != name {
			h.logger.Warn("mcp host: tool name collision, replacing",
				"tool", t.Name, "previous_server", prev.serverName, "server", name)
		}
		h.tools[t.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName:   name,
			measurements: newRollingWindow(defaultWindowSize),
		}
	}

	h.logger.Info("mcp host: server registered", "server", name, "tools", len(discovered))
	return nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// AvailableTools returns every registered tool sorted by name.
func (h *Host) AvailableTools() []types.ToolDefinition {
	h.mu.RLock()
	defs := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	h.mu.RUnlock()

	slices.SortFunc(defs, func(a, b types.ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// ExecuteTool calls the named tool with JSON-encoded args.
//
// A non-nil *ToolResult is returned on success even when
// [mcp.ToolResult.IsError] is true. A Go error is returned only for unknown
// tools and transport or protocol failures.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp host: tool %q not found", name)
	}

	ctx, span := observe.StartSpan(ctx, "mcp.tool")
	span.SetAttributes(attribute.String("tool", name), attribute.String("server", entry.serverName))
	defer span.End()

	start := time.Now()

	var (
		result  *mcp.ToolResult
		execErr error
	)
	if entry.builtinFn != nil {
		result = executeBuiltin(ctx, entry, args)
	} else {
		result, execErr = h.executeMCPTool(ctx, entry, args)
	}

	elapsed := time.Since(start)
	failed := execErr != nil || (result != nil && result.IsError)
	entry.measurements.Record(elapsed.Milliseconds(), failed)
	if h.metrics != nil {
		h.metrics.RecordToolCall(ctx, name, elapsed, failed)
	}

	if execErr != nil {
		span.RecordError(execErr)
		return nil, execErr
	}
	result.DurationMs = elapsed.Milliseconds()
	return result, nil
}

// executeBuiltin calls the in-process handler for a builtin tool.
func executeBuiltin(ctx context.Context, entry toolEntry, args string) *mcp.ToolResult {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &mcp.ToolResult{Content: err.Error(), IsError: true}
	}
	return &mcp.ToolResult{Content: output}
}

// executeMCPTool routes the call to the owning server session.
func (h *Host) executeMCPTool(ctx context.Context, entry toolEntry, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	session, ok := h.servers[entry.serverName]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcp host: invalid args JSON for tool %q: %w", entry.def.Name, err)
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{Content: sb.String(), IsError: res.IsError}, nil
}

// ToolHealth reports the rolling-window statistics of every tool, sorted by
// name.
func (h *Host) ToolHealth() []mcp.ToolHealth {
	h.mu.RLock()
	out := make([]mcp.ToolHealth, 0, len(h.tools))
	for name, e := range h.tools {
		out = append(out, mcp.ToolHealth{
			Name:      name,
			Server:    e.serverName,
			P50Ms:     e.measurements.P50(),
			P99Ms:     e.measurements.P99(),
			CallCount: e.measurements.Count(),
			ErrorRate: e.measurements.ErrorRate(),
		})
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b mcp.ToolHealth) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Close shuts down all server connections and clears the registry.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.servers {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]toolEntry)
	return firstErr
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}
