// Package mock provides an in-memory test double for the [mcp.Host]
// interface.
//
// Typical usage:
//
//	h := &mock.Host{Tools: []types.ToolDefinition{{Name: "search_tracks"}}}
//	h.Results = map[string]string{"search_tracks": `{"tracks":[]}`}
//
//	// inject h into the system under test …
//
//	if got := len(h.Executions()); got != 1 {
//	    t.Errorf("expected 1 tool call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/groovi/groovi/internal/mcp"
	"github.com/groovi/groovi/pkg/types"
)

// Execution records one ExecuteTool call.
type Execution struct {
	Name string
	Args string
}

// Host is a configurable test double for [mcp.Host]. It is safe for
// concurrent use.
type Host struct {
	mu sync.Mutex

	// Tools is returned by AvailableTools.
	Tools []types.ToolDefinition

	// Results maps tool names to the Content returned by ExecuteTool.
	// Unknown names yield an IsError result.
	Results map[string]string

	// ExecuteFunc, when set, replaces the Results lookup.
	ExecuteFunc func(ctx context.Context, name, args string) (*mcp.ToolResult, error)

	// ExecuteErr is returned by every ExecuteTool call when non-nil.
	ExecuteErr error

	// RegisterErr is returned by RegisterServer when non-nil.
	RegisterErr error

	registered []mcp.ServerConfig
	executions []Execution
	closed     bool
}

var _ mcp.Host = (*Host)(nil)

// RegisterServer implements [mcp.Host].
func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = append(h.registered, cfg)
	return h.RegisterErr
}

// AvailableTools implements [mcp.Host].
func (h *Host) AvailableTools() []types.ToolDefinition {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.ToolDefinition, len(h.Tools))
	copy(out, h.Tools)
	return out
}

// ExecuteTool implements [mcp.Host].
func (h *Host) ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	h.mu.Lock()
	h.executions = append(h.executions, Execution{Name: name, Args: args})
	fn, err := h.ExecuteFunc, h.ExecuteErr
	content, ok := h.Results[name]
	h.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, name, args)
	}
	if !ok {
		return &mcp.ToolResult{Content: fmt.Sprintf("unknown tool %q", name), IsError: true}, nil
	}
	return &mcp.ToolResult{Content: content}, nil
}

// ToolHealth implements [mcp.Host]. It reports call counts only.
func (h *Host) ToolHealth() []mcp.ToolHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range h.executions {
		counts[e.Name]++
	}
	out := make([]mcp.ToolHealth, 0, len(h.Tools))
	for _, t := range h.Tools {
		out = append(out, mcp.ToolHealth{Name: t.Name, CallCount: counts[t.Name]})
	}
	return out
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Executions returns a copy of all recorded ExecuteTool calls.
func (h *Host) Executions() []Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Execution, len(h.executions))
	copy(out, h.executions)
	return out
}

// Registered returns the server configs passed to RegisterServer.
func (h *Host) Registered() []mcp.ServerConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]mcp.ServerConfig, len(h.registered))
	copy(out, h.registered)
	return out
}

// Closed reports whether Close was called.
func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
