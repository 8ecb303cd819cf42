// Package mock provides a test double for the tts.Provider interface.
//
// Provider emits a fixed set of PCM chunks per call and records the text it
// was asked to speak. Set Block to keep the stream open until the caller
// cancels, which is how tests simulate a long response being interrupted.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of PCM slices emitted by every stream.
	Chunks [][]byte

	// Block keeps the stream open after Chunks until ctx is cancelled.
	Block bool

	// SynthesizeErr, if non-nil, is returned by SynthesizeStream.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// PCMFormat is returned by Format. Zero means 22050 Hz mono.
	PCMFormat audio.Format

	// Texts records the full text of each stream once its input closes.
	Texts []string

	// Cancelled counts streams that ended because ctx was cancelled.
	Cancelled int

	calls int
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, _ types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.calls++
	err := p.SynthesizeErr
	chunks := p.Chunks
	block := p.Block
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)

		var sb strings.Builder
	read:
		for {
			select {
			case s, ok := <-text:
				if !ok {
					break read
				}
				sb.WriteString(s)
			case <-ctx.Done():
				p.cancelled()
				return
			}
		}
		p.mu.Lock()
		p.Texts = append(p.Texts, sb.String())
		p.mu.Unlock()

		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				p.cancelled()
				return
			}
		}
		if block {
			<-ctx.Done()
			p.cancelled()
		}
	}()
	return out, nil
}

func (p *Provider) cancelled() {
	p.mu.Lock()
	p.Cancelled++
	p.mu.Unlock()
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	if p.PCMFormat.SampleRate == 0 {
		return audio.Format{SampleRate: 22050, Channels: 1}
	}
	return p.PCMFormat
}

// CallCount returns the number of SynthesizeStream calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// SpokenTexts returns a copy of Texts.
func (p *Provider) SpokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Texts...)
}

// CancelCount returns the number of cancelled streams.
func (p *Provider) CancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Cancelled
}
