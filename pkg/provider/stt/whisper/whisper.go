// Package whisper transcribes utterances with whisper.cpp, either through a
// whisper-server over HTTP ([Provider]) or in-process through the CGO
// bindings ([NativeProvider]).
//
//	p, err := whisper.New("http://localhost:8081", whisper.WithLanguage("en"))
//	text, err := p.Transcribe(ctx, pcm)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// minDuration is the shortest clip worth sending. whisper tends to
	// invent words for shorter input.
	minDuration = 250 * time.Millisecond
)

// MusicPrompt biases decoding toward the vocabulary of music requests.
const MusicPrompt = "Hey groovi, play some lo-fi hip hop. Something upbeat, chill, jazzy or acoustic."

var _ stt.Provider = (*Provider)(nil)

// Provider posts each utterance to a whisper-server /inference endpoint.
type Provider struct {
	endpoint   string
	fields     map[string]string
	sampleRate int
	client     *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use, for servers that host
// several.
func WithModel(model string) Option {
	return func(p *Provider) { p.fields["model"] = model }
}

// WithLanguage sets the spoken language. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.fields["language"] = lang }
}

// WithPrompt replaces [MusicPrompt] as the decoder prompt. An empty prompt
// disables prompting.
func WithPrompt(prompt string) Option {
	return func(p *Provider) { p.fields["prompt"] = prompt }
}

// WithTemperature sets the decoding temperature. Default 0.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.fields["temperature"] = strconv.FormatFloat(t, 'f', -1, 64) }
}

// WithSampleRate sets the rate of the PCM given to Transcribe. Default 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New returns a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL is required")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		fields: map[string]string{
			"language":        defaultLanguage,
			"prompt":          MusicPrompt,
			"temperature":     "0",
			"response_format": "json",
		},
		sampleRate: defaultSampleRate,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. Clips shorter than a quarter second
// are not sent.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	format := audio.Format{SampleRate: p.sampleRate, Channels: 1}
	if format.Duration(pcm) < minDuration {
		return "", nil
	}

	body, contentType, err := p.form(audio.EncodeWAV(pcm, format))
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("whisper: server returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return stt.Clean(out.Text), nil
}

// form builds the multipart body: the WAV under "file" plus every non-empty
// field.
func (p *Provider) form(wav []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}
	for k, v := range p.fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
