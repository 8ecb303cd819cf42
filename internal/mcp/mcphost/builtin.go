package mcphost

import (
	"context"
	"fmt"

	"github.com/groovi/groovi/pkg/types"
)

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "builtin"

// BuiltinTool is a tool implemented as a Go function that runs in-process.
// ExecuteTool calls Handler directly without an MCP round-trip; the call is
// still measured like any other tool.
type BuiltinTool struct {
	// Definition is the descriptor presented to the LLM.
	Definition types.ToolDefinition

	// Handler receives the JSON object of arguments. A non-nil error marks
	// the result as an application-level error.
	Handler func(ctx context.Context, args string) (string, error)
}

// RegisterBuiltin registers an in-process tool, replacing any tool with the
// same name.
func (h *Host) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Definition.Name)
	}
	if tool.Definition.Parameters == nil {
		tool.Definition.Parameters = map[string]any{"type": "object"}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Definition.Name] = toolEntry{
		def:          tool.Definition,
		serverName:   builtinServerName,
		measurements: newRollingWindow(defaultWindowSize),
		builtinFn:    tool.Handler,
	}
	return nil
}
