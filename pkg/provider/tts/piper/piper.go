// Package piper provides a TTS provider backed by a Piper HTTP server
// (python -m piper.http_server). It implements the tts.Provider interface.
//
// Piper synthesises one utterance per request, so SynthesizeStream accumulates
// incoming text fragments into complete sentences and dispatches concurrent HTTP
// requests with a small lookahead buffer. Audio is emitted in sentence order.
//
// Typical usage:
//
//	p, err := piper.New("http://localhost:5000",
//	    piper.WithSampleRate(22050),
//	    piper.WithTimeout(15*time.Second),
//	)
//	pcm, err := p.SynthesizeStream(ctx, textCh, types.VoiceProfile{ID: "en_US-lessac-medium"})
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultSampleRate is the native rate of Piper's medium-quality voices.
	DefaultSampleRate = 22050

	defaultTimeout = 30 * time.Second
	voicesEndpoint = "/voices"

	// sentenceLookaheadBuf bounds the number of in-flight synthesis requests.
	sentenceLookaheadBuf = 4

	audioChanBuf = 256
	pcmChunkSize = 4096
)

// Option is a functional option for configuring a Piper Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithSampleRate sets the output sample rate. Audio returned by the server at
// a different rate is resampled. Defaults to [DefaultSampleRate].
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// Provider implements tts.Provider against a Piper HTTP server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	sampleRate int
	httpClient *http.Client
}

// New creates a Provider targeting the Piper server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		sampleRate: DefaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Format reports mono 16-bit PCM at the configured output rate.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: p.sampleRate, Channels: 1}
}

type synthRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty"`
}

type audioResult struct {
	pcm []byte
	err error
}

// SynthesizeStream splits incoming text into sentences and synthesises each
// with its own request, keeping up to four requests in flight. PCM is emitted
// in 4 KiB chunks in the original sentence order. A failed request ends the
// stream.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	audioCh := make(chan []byte, audioChanBuf)

	go func() {
		defer close(audioCh)

		sentences := make(chan string, sentenceLookaheadBuf)
		resultQueue := make(chan chan audioResult, sentenceLookaheadBuf)

		go func() {
			defer close(sentences)
			var buf strings.Builder
			for {
				select {
				case fragment, ok := <-text:
					if !ok {
						if rest := strings.TrimSpace(buf.String()); rest != "" {
							select {
							case sentences <- rest:
							case <-ctx.Done():
							}
						}
						return
					}
					buf.WriteString(fragment)
					for {
						s := buf.String()
						idx := tts.SentenceBoundary(s)
						if idx < 0 {
							break
						}
						sentence := strings.TrimSpace(s[:idx+1])
						buf.Reset()
						buf.WriteString(s[idx+1:])
						if sentence == "" {
							continue
						}
						select {
						case sentences <- sentence:
						case <-ctx.Done():
							return
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			defer close(resultQueue)
			for {
				select {
				case sentence, ok := <-sentences:
					if !ok {
						return
					}
					ch := make(chan audioResult, 1)
					select {
					case resultQueue <- ch:
					case <-ctx.Done():
						return
					}
					go func(s string, out chan<- audioResult) {
						pcm, err := p.synthesize(ctx, s, voice)
						out <- audioResult{pcm: pcm, err: err}
					}(sentence, ch)
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			select {
			case ch, ok := <-resultQueue:
				if !ok {
					return
				}
				var result audioResult
				select {
				case result = <-ch:
				case <-ctx.Done():
					return
				}
				if result.err != nil {
					return
				}
				pcm := result.pcm
				for len(pcm) > 0 {
					end := min(pcmChunkSize, len(pcm))
					select {
					case audioCh <- pcm[:end]:
					case <-ctx.Done():
						return
					}
					pcm = pcm[end:]
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// synthesize performs one POST / request and returns PCM at the output rate.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice types.VoiceProfile) ([]byte, error) {
	body := synthRequest{Text: sentence, Voice: voice.ID}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		body.LengthScale = 1 / voice.SpeedFactor
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("piper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper: synthesize returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read WAV response: %w", err)
	}
	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}
	if f.Channels == 1 && f.SampleRate != p.sampleRate {
		pcm = audio.ResampleMono16(pcm, f.SampleRate, p.sampleRate)
	}
	return pcm, nil
}

// ListVoices returns the voices installed on the Piper server, sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("piper: create voices request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: GET %s: %w", voicesEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: GET %s returned status %d", voicesEndpoint, resp.StatusCode)
	}

	// The server answers with a map of voice id to its model config.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("piper: decode voices: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	voices := make([]types.VoiceProfile, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, types.VoiceProfile{ID: id, Name: id, Provider: "piper"})
	}
	return voices, nil
}
