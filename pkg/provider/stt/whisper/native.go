package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/semaphore"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process. One model is loaded and shared
// by every session. Each call gets its own inference context, and at most
// WithNativeConcurrency calls decode at once; the rest wait their turn or
// give up when their ctx ends.
//
// Building it needs libwhisper.a and whisper.h on LIBRARY_PATH and
// C_INCLUDE_PATH.
type NativeProvider struct {
	model    whisperlib.Model
	slots    *semaphore.Weighted
	language string
	prompt   string
	threads  uint
	limit    int64
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the spoken language. Default "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativePrompt replaces [MusicPrompt] as the initial prompt.
func WithNativePrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// WithNativeThreads sets the CPU threads per decode. Default: all CPUs
// divided by the concurrency limit.
func WithNativeThreads(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.threads = uint(n)
		}
	}
}

// WithNativeConcurrency caps simultaneous decodes. Default 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.limit = int64(n)
		}
	}
}

// NewNative loads the model file at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	p := &NativeProvider{language: defaultLanguage, prompt: MusicPrompt, limit: 1}
	for _, opt := range opts {
		opt(p)
	}
	if p.threads == 0 {
		p.threads = uint(max(1, runtime.NumCPU()/int(p.limit)))
	}
	p.slots = semaphore.NewWeighted(p.limit)

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load %s: %w", modelPath, err)
	}
	p.model = model
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe implements stt.Provider. A decode that has started runs to
// completion; ctx is honoured while waiting for a slot and afterwards.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if (audio.Format{SampleRate: defaultSampleRate, Channels: 1}).Duration(pcm) < minDuration {
		return "", nil
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	text, err := p.decode(audio.ToFloat32(pcm))
	p.slots.Release(1)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return stt.Clean(text), nil
}

func (p *NativeProvider) decode(samples []float32) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: unsupported language, using auto-detect", "language", p.language, "err", err)
	}
	wctx.SetThreads(p.threads)
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: segment: %w", err)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(seg.Text))
	}
}
