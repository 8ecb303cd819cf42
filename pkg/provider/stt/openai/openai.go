// Package openai provides an STT provider backed by the OpenAI audio
// transcription API. Groq serves the same endpoint with whisper-large-v3; set
// the base URL to https://api.groq.com/openai/v1 to use it.
package openai

import (
	"bytes"
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the /audio/transcriptions endpoint.
type Provider struct {
	client     oai.Client
	model      string
	language   string
	sampleRate int
}

// Option is a functional option for Provider.
type Option func(*Provider, *[]option.RequestOption)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(_ *Provider, ro *[]option.RequestOption) {
		*ro = append(*ro, option.WithBaseURL(url))
	}
}

// WithLanguage sets the ISO-639-1 language hint. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider, _ *[]option.RequestOption) { p.language = lang }
}

// WithSampleRate sets the sample rate of the PCM passed to Transcribe.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider, _ *[]option.RequestOption) { p.sampleRate = rate }
}

// New constructs a Provider. model defaults to "whisper-1" when empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}
	p := &Provider{model: model, language: "en", sampleRate: 16000}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(p, &reqOpts)
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Transcribe uploads pcm as a WAV file and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: p.sampleRate, Channels: 1})

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Clean(resp.Text), nil
}
