// Package music implements the tool-using music search agent.
//
// [Agent.Run] drives an LLM through the catalog tools exposed by an
// [mcp.Host]: the model searches artists, playlists and genres, the agent
// executes each requested call and collects every track it sees, and the
// model finally answers with a JSON selection. When the catalog or the LLM is
// unavailable the agent answers from a built-in curated library instead.
package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/internal/mcp"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/types"
)

// Defaults for the search loop.
const (
	DefaultMaxIterations = 5
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 2000
)

// Errors returned by [Agent.Run].
var (
	ErrMaxIterations = errors.New("agent reached maximum iterations without completing")
	ErrParse         = errors.New("could not parse agent response")
)

// Agent is an [agent.Searcher] backed by an LLM and MCP catalog tools.
// It holds no per-search state and is safe for concurrent use.
type Agent struct {
	llm     llm.Provider
	host    mcp.Host
	logger  *slog.Logger
	metrics *observe.Metrics

	maxIterations int
	temperature   float64
	maxTokens     int
}

var _ agent.Searcher = (*Agent)(nil)

// Option configures an [Agent].
type Option func(*Agent)

// WithMaxIterations caps the number of LLM rounds per search.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithTemperature sets the sampling temperature of every LLM round.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithMaxTokens caps the completion length of every LLM round.
func WithMaxTokens(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithMetrics records iterations and LLM latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an Agent. Either provider may be nil, in which case every
// search is answered by [Curated].
func New(p llm.Provider, host mcp.Host, opts ...Option) *Agent {
	a := &Agent{
		llm:           p,
		host:          host,
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
		temperature:   DefaultTemperature,
		maxTokens:     DefaultMaxTokens,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run searches for tracks matching query.
//
// Each round offers the catalog tools to the LLM and executes the calls it
// requests. On the last round, if any tracks were collected, tools are
// withdrawn and the model is told to choose from them. A final answer that
// cannot be parsed falls back to the first five unique collected tracks.
func (a *Agent) Run(ctx context.Context, query string) (agent.Result, error) {
	tools := a.tools()
	if a.llm == nil || !hasCatalog(tools) {
		a.logger.Info("music agent: catalog unavailable, using curated library")
		return Curated(query), nil
	}

	ctx, span := observe.StartSpan(ctx, "music.search")
	defer span.End()

	maxTokens := a.maxTokens
	if limit := a.llm.Capabilities().MaxOutputTokens; limit > 0 && maxTokens > limit {
		maxTokens = limit
	}

	messages := []types.Message{{Role: types.RoleUser, Content: query}}
	var collected []types.Track

	for iter := 1; iter <= a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return agent.Result{}, fmt.Errorf("music: search: %w", err)
		}

		last := iter == a.maxIterations
		req := llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        tools,
			Temperature:  a.temperature,
			MaxTokens:    maxTokens,
		}
		if last && len(collected) > 0 {
			messages = append(messages, types.Message{Role: types.RoleUser, Content: finalPrompt(collected)})
			req.Messages = messages
			req.Tools = nil
			req.JSONOutput = true
		}

		a.logger.Debug("music agent: iteration", "iteration", iter, "max", a.maxIterations)
		resp, err := a.complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return agent.Result{}, fmt.Errorf("music: search: %w", ctx.Err())
			}
			a.logger.Warn("music agent: llm round failed", "iteration", iter, "err", err)
			continue
		}

		if len(resp.ToolCalls) > 0 && !last {
			messages = append(messages, types.Message{
				Role:      types.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			for _, call := range resp.ToolCalls {
				content := a.execute(ctx, call)
				collected = append(collected, tracksFromTool(content)...)
				messages = append(messages, types.Message{
					Role:       types.RoleTool,
					Content:    content,
					ToolCallID: call.ID,
				})
			}
			continue
		}

		a.recordIterations(ctx, iter)
		if resp.Truncated() {
			a.logger.Warn("music agent: answer hit the token limit", "max_tokens", maxTokens)
		}
		res, err := parseAnswer(resp.Content)
		switch {
		case err == nil && len(res.Tracks) > 0:
			res.Tracks = enrich(res.Tracks, collected)
		case len(collected) > 0:
			a.logger.Warn("music agent: unusable answer, using collected tracks", "err", err)
			return fromCollected(collected, iter), nil
		case err != nil:
			return agent.Result{}, fmt.Errorf("music: %w", ErrParse)
		}
		res.Iterations = iter
		return res, nil
	}

	a.recordIterations(ctx, a.maxIterations)
	if len(collected) > 0 {
		return fromCollected(collected, a.maxIterations), nil
	}
	return agent.Result{}, fmt.Errorf("music: %w", ErrMaxIterations)
}

// tools returns the host's tool list, or nil without a host.
func (a *Agent) tools() []types.ToolDefinition {
	if a.host == nil {
		return nil
	}
	return a.host.AvailableTools()
}

// hasCatalog reports whether any catalog tool is among tools.
func hasCatalog(tools []types.ToolDefinition) bool {
	return slices.ContainsFunc(tools, func(t types.ToolDefinition) bool {
		return slices.Contains(CatalogTools, t.Name)
	})
}

func (a *Agent) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, done := observe.TraceProvider(ctx, a.metrics, "music-agent", "llm")
	resp, err := a.llm.Complete(ctx, req)
	done(err)
	return resp, err
}

// execute runs one tool call and returns the content handed back to the
// model. Failures become a JSON error object so the model can recover.
func (a *Agent) execute(ctx context.Context, call types.ToolCall) string {
	a.logger.Info("music agent: tool call", "tool", call.Name, "args", call.Arguments)
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	res, err := a.host.ExecuteTool(ctx, call.Name, args)
	if err != nil {
		a.logger.Warn("music agent: tool failed", "tool", call.Name, "err", err)
		return errorJSON(err.Error())
	}
	if res.IsError {
		return errorJSON(res.Content)
	}
	return res.Content
}

func errorJSON(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

func (a *Agent) recordIterations(ctx context.Context, n int) {
	if a.metrics != nil {
		a.metrics.AgentIterations.Record(ctx, int64(n))
	}
}
