package resilience

import (
	"context"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over across several synthesis
// backends.
//
// Only stream setup participates in failover. Once a backend has accepted the
// stream its audio is forwarded until it ends; a mid-stream failure simply
// ends the reply early.
//
// Audio is always reported in the primary's [audio.Format]. A fallback with a
// different mono sample rate is resampled on the fly so the emitter can keep
// wrapping chunks with a single header.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends an alternate backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Names lists the backends in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// SynthesizeStream implements [tts.Provider]. Providers refuse a stream
// before reading from text, so the same channel is handed to each fallback in
// turn.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	want := f.Format()
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		pcm, err := p.SynthesizeStream(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		return convert(ctx, pcm, p.Format(), want), nil
	})
}

// ListVoices implements [tts.Provider].
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Format reports the primary's PCM format.
func (f *TTSFallback) Format() audio.Format {
	return f.group.Primary().Format()
}

// convert resamples in when its format differs from want. Stereo or mismatched
// channel layouts are passed through untouched.
func convert(ctx context.Context, in <-chan []byte, have, want audio.Format) <-chan []byte {
	if have.SampleRate == want.SampleRate || have.Channels != 1 || want.Channels != 1 {
		return in
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for chunk := range in {
			select {
			case out <- audio.ResampleMono16(chunk, have.SampleRate, want.SampleRate):
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
	}()
	return out
}
