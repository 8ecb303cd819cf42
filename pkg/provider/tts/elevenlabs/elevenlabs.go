// Package elevenlabs streams speech from the ElevenLabs stream-input
// websocket API.
//
// groovi feeds it one sentence at a time, so every fragment is sent with
// flush set: ElevenLabs starts speaking each sentence as soon as it arrives
// instead of waiting for more text.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultWSBase  = "wss://api.elevenlabs.io"
	defaultAPIBase = "https://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"
	defaultFormat  = "pcm_22050"
)

// Provider implements tts.Provider.
type Provider struct {
	apiKey     string
	model      string
	format     string
	rate       int
	settings   voiceSettings
	wsBase     string
	apiBase    string
	httpClient *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the ElevenLabs model. Default eleven_flash_v2_5.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects a raw PCM output format such as "pcm_16000" or
// "pcm_24000". Default pcm_22050.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// WithVoiceSettings sets stability and similarity boost, both in [0, 1].
// Defaults 0.5 and 0.75.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) {
		p.settings.Stability = stability
		p.settings.SimilarityBoost = similarity
	}
}

// WithBaseURLs points the provider at other websocket and REST hosts.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// New returns a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		format:     defaultFormat,
		settings:   voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		wsBase:     defaultWSBase,
		apiBase:    defaultAPIBase,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	rate, err := pcmRate(p.format)
	if err != nil {
		return nil, err
	}
	p.rate = rate
	return p, nil
}

func pcmRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has no sample rate", format)
	}
	return rate, nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: p.rate, Channels: 1}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// inbound is a text frame sent to ElevenLabs. The first frame carries a
// single space and the voice settings; an empty Text ends the stream.
type inbound struct {
	Text          string         `json:"text"`
	Flush         bool           `json:"flush,omitempty"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type outbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice ID is required")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), &websocket.DialOptions{
		HTTPHeader: http.Header{"xi-api-key": {p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	settings := p.settings
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		settings.Speed = voice.SpeedFactor
	}
	if err := wsjson.Write(ctx, conn, inbound{Text: " ", VoiceSettings: &settings}); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("elevenlabs: open stream: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer conn.CloseNow()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return p.send(gctx, conn, text) })
		g.Go(func() error { return p.receive(gctx, conn, out) })
		switch err := g.Wait(); {
		case errors.Is(err, errDone):
			conn.Close(websocket.StatusNormalClosure, "")
		case ctx.Err() != nil:
		case err != nil:
			slog.Warn("elevenlabs: stream ended early", "voice", voice.ID, "err", err)
		}
	}()
	return out, nil
}

// send forwards fragments until text closes, then ends the stream.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, text <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frag, ok := <-text:
			if !ok {
				return wsjson.Write(ctx, conn, inbound{Text: ""})
			}
			if strings.TrimSpace(frag) == "" {
				continue
			}
			// Text without trailing whitespace is held back server side.
			if !strings.HasSuffix(frag, " ") {
				frag += " "
			}
			if err := wsjson.Write(ctx, conn, inbound{Text: frag, Flush: true}); err != nil {
				return err
			}
		}
	}
}

// errDone stops the sender once the final chunk arrived.
var errDone = errors.New("final chunk received")

// receive decodes audio chunks onto out until the final one.
func (p *Provider) receive(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	for {
		var msg outbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				continue
			}
			return err
		}
		if msg.Error != "" {
			return fmt.Errorf("elevenlabs: %s", msg.Error)
		}
		if msg.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: audio chunk: %w", err)
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if msg.IsFinal {
			return errDone
		}
	}
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: voices: %s", resp.Status)
	}

	var body struct {
		Voices []struct {
			ID       string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: voices: %w", err)
	}

	voices := make([]types.VoiceProfile, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := map[string]string{}
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, types.VoiceProfile{ID: v.ID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return voices, nil
}
