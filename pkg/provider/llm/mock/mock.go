// Package mock provides a test double for the llm.Provider interface.
//
// Provider returns scripted responses in order, which suits multi-step tool
// loops: each Complete call consumes the next entry of Responses. Once the
// script is exhausted the last response is repeated. CompleteFunc, when set,
// takes precedence and can inspect the request.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is consumed one per call.
	Responses []*llm.CompletionResponse

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// CompleteFunc, if non-nil, handles every call instead of Responses.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall

	next int
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn == nil {
		defer p.mu.Unlock()
		if p.Err != nil {
			return nil, p.Err
		}
		if len(p.Responses) == 0 {
			return &llm.CompletionResponse{}, nil
		}
		resp := p.Responses[min(p.next, len(p.Responses)-1)]
		p.next++
		return resp, nil
	}
	p.mu.Unlock()
	return fn(ctx, req)
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the request of the most recent call, or the zero value.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Calls[len(p.Calls)-1].Req
}
