// Package mcp defines the interface for a Model Context Protocol (MCP) host.
//
// The host manages connections to the music catalog server (and any other MCP
// servers), keeps a catalogue of the tools they expose, executes tool calls on
// behalf of the music search agent, and tracks per-tool latency.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each MCP server to connect to.
//  2. Use [Host.AvailableTools] to build the tool list offered to the LLM.
//  3. Use [Host.ExecuteTool] to run the calls the LLM requests.
//  4. Call [Host.Close] to release all connections.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"

	"github.com/groovi/groovi/pkg/types"
)

// Transport is how a [Host] reaches an MCP server.
type Transport string

const (
	// TransportStdio runs the server as a child process speaking over its
	// stdin and stdout.
	TransportStdio Transport = "stdio"
	// TransportStreamableHTTP posts to the server's streamable HTTP endpoint.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t names a supported transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP:
		return true
	}
	return false
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server within a [Host]. Used in logs and errors.
	Name string

	// Transport is either [TransportStdio] or [TransportStreamableHTTP].
	Transport Transport

	// Command is the executable and arguments for stdio servers, e.g.
	// "python -m spotify_mcp".
	Command string

	// URL is the endpoint for streamable-http servers.
	URL string

	// Env is added to the parent environment of a stdio server process.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, typically a JSON document.
	Content string

	// IsError reports an application-level failure. Content then carries the
	// error message. Transport failures are returned as Go errors instead.
	IsError bool

	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
}

// ToolHealth is the measured runtime performance of one tool over its recent
// calls.
type ToolHealth struct {
	Name      string
	Server    string
	P50Ms     int64
	P99Ms     int64
	CallCount int
	ErrorRate float64
}

// Host manages MCP server connections and routes tool calls.
type Host interface {
	// RegisterServer connects to the server described by cfg and imports its
	// tools. Registering an existing name replaces the previous connection.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// AvailableTools returns every registered tool sorted by name.
	AvailableTools() []types.ToolDefinition

	// ExecuteTool calls the named tool with a JSON object of arguments. A Go
	// error is returned only for unknown tools and transport failures.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// ToolHealth reports latency and error statistics for every tool.
	ToolHealth() []ToolHealth

	// Close shuts down all server connections. The Host must not be used
	// afterwards.
	Close() error
}
