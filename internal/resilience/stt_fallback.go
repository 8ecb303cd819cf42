package resilience

import (
	"context"

	"github.com/groovi/groovi/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across several
// transcription backends, for example a local whisper.cpp server backed by
// Groq's hosted whisper.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends an alternate backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Names lists the backends in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Transcribe implements [stt.Provider]. An empty transcript is a success and
// does not trigger failover.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, pcm)
	})
}
