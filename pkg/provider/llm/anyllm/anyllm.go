// Package anyllm serves llm.Provider from any vendor github.com/mozilla-ai/any-llm-go
// supports. groovi uses it for the vendors without an OpenAI-compatible
// endpoint (Anthropic, Gemini) and for local models (Ollama, llama.cpp).
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
//	p, err := anyllm.New("ollama", "llama3.1")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/types"
)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

func wrap[P anyllmlib.Provider](f func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return f(opts...) }
}

var backends = map[string]backendFunc{
	"groq":      wrap(groq.New),
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// Backends returns the vendor names New accepts, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var errNoChoices = errors.New("anyllm: response has no choices")

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider.
type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
}

// New connects to vendor. Without anyllmlib.WithAPIKey the backend reads
// its usual environment variable (ANTHROPIC_API_KEY, GEMINI_API_KEY, ...).
func New(vendor, model string, opts ...anyllmlib.Option) (*Provider, error) {
	vendor = strings.ToLower(vendor)
	if model == "" {
		return nil, errors.New("anyllm: model is required")
	}
	newBackend, ok := backends[vendor]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown vendor %q, want one of %s", vendor, strings.Join(Backends(), ", "))
	}
	b, err := newBackend(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", vendor, err)
	}
	return &Provider{backend: b, vendor: vendor, model: model}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.vendor, p.model)
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s %s: %w", p.vendor, p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}

	choice := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: string(choice.FinishReason),
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	system := req.SystemPrompt
	if req.JSONOutput {
		system = strings.TrimSpace(system + "\n\n" + llm.JSONInstruction)
	}

	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type:     "function",
			Function: anyllmlib.Function{Name: td.Name, Description: td.Description, Parameters: td.Parameters},
		})
	}
	return params
}

func convertMessage(m types.Message) anyllmlib.Message {
	msg := anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: anyllmlib.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return msg
}

// vendorDefaults apply to models missing from modelOverrides.
var vendorDefaults = map[string]types.ModelCapabilities{
	"anthropic": {ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsToolCalling: true},
	"gemini":    {ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsToolCalling: true},
	"deepseek":  {ContextWindow: 65_536, MaxOutputTokens: 8_192, SupportsToolCalling: true},
	"mistral":   {ContextWindow: 131_072, MaxOutputTokens: 8_192, SupportsToolCalling: true},
	// Local runtimes default to a small window; tool support depends on the
	// loaded model.
	"ollama":    {ContextWindow: 8_192, MaxOutputTokens: 2_048, SupportsToolCalling: true},
	"llamacpp":  {ContextWindow: 8_192, MaxOutputTokens: 2_048},
	"llamafile": {ContextWindow: 8_192, MaxOutputTokens: 2_048},
}

// modelOverrides match on a substring of the lowercased model name.
var modelOverrides = []struct {
	match string
	caps  types.ModelCapabilities
}{
	{"llama-3.1-8b", types.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{"llama3.1", types.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{"llama-3.3-70b", types.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 32_768, SupportsToolCalling: true}},
	{"llama3.3", types.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 32_768, SupportsToolCalling: true}},
	{"gpt-4o", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsToolCalling: true}},
}

func modelCapabilities(vendor, model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, o := range modelOverrides {
		if strings.Contains(lower, o.match) {
			return o.caps
		}
	}
	if caps, ok := vendorDefaults[vendor]; ok {
		return caps
	}
	return types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsToolCalling: true}
}
