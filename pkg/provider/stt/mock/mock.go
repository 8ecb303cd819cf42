// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns Text (or the next entry of Queue) and records every PCM
// payload it was asked to transcribe, so tests can assert both on the
// transcript and on whether the provider was called at all.
package mock

import (
	"context"
	"sync"

	"github.com/groovi/groovi/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Queue is consumed one entry per call; when empty Text is returned.
	Queue []string

	// Text is the transcript returned once Queue is empty.
	Text string

	// Err, if non-nil, is returned from every call.
	Err error

	// Calls holds a copy of every PCM payload passed to Transcribe.
	Calls [][]byte
}

// Transcribe records pcm and returns the scripted transcript.
func (p *Provider) Transcribe(_ context.Context, pcm []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, append([]byte(nil), pcm...))
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Queue) > 0 {
		t := p.Queue[0]
		p.Queue = p.Queue[1:]
		return t, nil
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
