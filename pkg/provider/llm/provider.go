// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (Groq, OpenAI, Anthropic,
// a local Ollama instance) and exposes a uniform completion call used by the
// turn dispatcher for conversational replies and by the music agent for its
// tool-calling loop.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/groovi/groovi/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message typically comes
	// from the user or is a tool result.
	Messages []types.Message

	// Tools is the set of function definitions offered to the model. Callers
	// should check Capabilities().SupportsToolCalling first.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0]. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int

	// SystemPrompt, when set, is sent as a leading "system" message.
	SystemPrompt string

	// JSONOutput asks for a reply that is a single JSON object. Backends
	// without a native JSON mode get an instruction in the system prompt.
	JSONOutput bool
}

// JSONInstruction is appended to the system prompt when a backend has no
// native JSON mode.
const JSONInstruction = "Respond with one JSON object and nothing else."

// Finish reasons shared by the OpenAI-compatible backends.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists the tool invocations requested by the model. The caller
	// executes them and appends the results to the conversation.
	ToolCalls []types.ToolCall

	// FinishReason is the backend's stop reason, e.g. [FinishLength] when
	// MaxTokens cut the reply short. Empty when the backend does not say.
	FinishReason string

	Usage Usage
}

// Truncated reports whether the reply stopped at the token limit.
func (r *CompletionResponse) Truncated() bool {
	return r.FinishReason == FinishLength
}

// Provider is the abstraction over any LLM backend.
//
// Complete must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model. The
	// result is constant for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}
