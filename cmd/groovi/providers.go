package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/groovi/groovi/internal/app"
	"github.com/groovi/groovi/internal/config"
	"github.com/groovi/groovi/internal/resilience"
	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/provider/llm/anyllm"
	oallm "github.com/groovi/groovi/pkg/provider/llm/openai"
	"github.com/groovi/groovi/pkg/provider/stt"
	oastt "github.com/groovi/groovi/pkg/provider/stt/openai"
	"github.com/groovi/groovi/pkg/provider/stt/whisper"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/provider/tts/elevenlabs"
	"github.com/groovi/groovi/pkg/provider/tts/piper"
	"github.com/groovi/groovi/pkg/provider/vad"
	"github.com/groovi/groovi/pkg/provider/vad/energy"
	"github.com/groovi/groovi/pkg/provider/wake"
	"github.com/groovi/groovi/pkg/provider/wake/phrase"
)

// anyLLMVendors are served through any-llm-go. openai and groq use the
// openai-go client directly.
var anyLLMVendors = []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile"}

// registerBuiltinProviders wires every shipped implementation into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterWake("phrase", func(entry config.ProviderEntry, transcriber stt.Provider) (wake.Factory, error) {
		var opts []phrase.Option
		if phrases := optStrings(entry.Options, "phrases"); len(phrases) > 0 {
			opts = append(opts, phrase.WithPhrases(phrases...))
		}
		if d := optDuration(entry.Options, "window"); d > 0 {
			opts = append(opts, phrase.WithWindow(d))
		}
		if d := optDuration(entry.Options, "stride"); d > 0 {
			opts = append(opts, phrase.WithStride(d))
		}
		if floor, ok := optFloat(entry.Options, "energy_floor"); ok {
			opts = append(opts, phrase.WithEnergyFloor(floor))
		}
		// Reject bad options at startup rather than on the first connection.
		if _, err := phrase.New(transcriber, opts...); err != nil {
			return nil, err
		}
		return func() (wake.Detector, error) {
			d, err := phrase.New(transcriber, opts...)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Detector, error) {
		var opts []energy.Option
		if db, ok := optFloat(entry.Options, "midpoint_db"); ok {
			opts = append(opts, energy.WithMidpoint(db))
		}
		if db, ok := optFloat(entry.Options, "slope_db"); ok {
			opts = append(opts, energy.WithSlope(db))
		}
		return energy.New(opts...), nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if prompt, ok := entry.Options["prompt"].(string); ok {
			opts = append(opts, whisper.WithPrompt(prompt))
		}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if prompt, ok := entry.Options["prompt"].(string); ok {
			opts = append(opts, whisper.WithNativePrompt(prompt))
		}
		if n, ok := optFloat(entry.Options, "threads"); ok {
			opts = append(opts, whisper.WithNativeThreads(int(n)))
		}
		if n, ok := optFloat(entry.Options, "concurrency"); ok {
			opts = append(opts, whisper.WithNativeConcurrency(int(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	for _, name := range []string{"openai", "groq"} {
		reg.RegisterSTT(name, func(entry config.ProviderEntry) (stt.Provider, error) {
			model := entry.Model
			var opts []oastt.Option
			switch {
			case entry.BaseURL != "":
				opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
			case name == "groq":
				opts = append(opts, oastt.WithBaseURL(oallm.GroqBaseURL))
				if model == "" {
					model = "whisper-large-v3"
				}
			}
			if lang := optString(entry.Options, "language"); lang != "" {
				opts = append(opts, oastt.WithLanguage(lang))
			}
			return oastt.New(entry.APIKey, model, opts...)
		})
	}

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if rate, ok := optFloat(entry.Options, "sample_rate"); ok {
			opts = append(opts, piper.WithSampleRate(int(rate)))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, piper.WithTimeout(d))
		}
		return piper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := optFloat(entry.Options, "stability")
		similarity, okB := optFloat(entry.Options, "similarity_boost")
		if okS || okB {
			if !okS {
				stability = 0.5
			}
			if !okB {
				similarity = 0.75
			}
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, name := range []string{"openai", "groq"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []oallm.Option
			switch {
			case entry.BaseURL != "":
				opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
			case name == "groq":
				opts = append(opts, oallm.WithBaseURL(oallm.GroqBaseURL))
			}
			if d := optDuration(entry.Options, "timeout"); d > 0 {
				opts = append(opts, oallm.WithTimeout(d))
			}
			if n, ok := optFloat(entry.Options, "max_retries"); ok {
				opts = append(opts, oallm.WithMaxRetries(int(n)))
			}
			return oallm.New(entry.APIKey, entry.Model, opts...)
		})
	}

	for _, vendor := range anyLLMVendors {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}
}

// buildProviders instantiates the providers named in cfg. Configured
// fallbacks wrap the primary in a resilience group with one circuit breaker
// per entry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	pc := cfg.Providers
	ps := &app.Providers{}
	var err error

	if ps.STT, err = buildSTT(reg, pc.STT, pc.STTFallbacks); err != nil {
		return nil, err
	}
	if ps.TTS, err = buildTTS(reg, pc.TTS, pc.TTSFallbacks); err != nil {
		return nil, err
	}
	if ps.LLM, err = buildLLM(reg, pc.LLM, pc.LLMFallbacks); err != nil {
		return nil, err
	}
	switch {
	case pc.AgentLLM.Name == pc.LLM.Name && pc.AgentLLM.Model == pc.LLM.Model:
		ps.AgentLLM = ps.LLM
	default:
		if ps.AgentLLM, err = buildLLM(reg, pc.AgentLLM, pc.LLMFallbacks); err != nil {
			return nil, err
		}
	}

	if pc.VAD.Name != "" {
		if ps.VAD, err = reg.CreateVAD(pc.VAD); err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", pc.VAD.Name, err)
		}
		logCreated("vad", pc.VAD.Name)
	}
	if pc.Wake.Name != "" {
		if ps.STT == nil {
			return nil, fmt.Errorf("wake provider %q needs an stt provider", pc.Wake.Name)
		}
		if ps.Wake, err = reg.CreateWake(pc.Wake, ps.STT); err != nil {
			return nil, fmt.Errorf("create wake provider %q: %w", pc.Wake.Name, err)
		}
		logCreated("wake", pc.Wake.Name)
	}
	return ps, nil
}

func buildSTT(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry) (stt.Provider, error) {
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	logCreated("stt", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}
	group := resilience.NewSTTFallback(p, primary.Name, resilience.FallbackConfig{})
	for _, e := range fallbacks {
		fb, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", e.Name, err)
		}
		group.AddFallback(e.Name, fb)
	}
	slog.Info("stt fallbacks enabled", "order", group.Names())
	return group, nil
}

func buildTTS(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry) (tts.Provider, error) {
	if primary.Name == "" {
		slog.Warn("no tts provider configured; responses are text only")
		return nil, nil
	}
	p, err := reg.CreateTTS(primary)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", primary.Name, err)
	}
	logCreated("tts", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}
	group := resilience.NewTTSFallback(p, primary.Name, resilience.FallbackConfig{})
	for _, e := range fallbacks {
		fb, err := reg.CreateTTS(e)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", e.Name, err)
		}
		group.AddFallback(e.Name, fb)
	}
	slog.Info("tts fallbacks enabled", "order", group.Names())
	return group, nil
}

func buildLLM(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry) (llm.Provider, error) {
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", primary.Name, err)
	}
	logCreated("llm", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}
	group := resilience.NewLLMFallback(p, primary.Name, resilience.FallbackConfig{})
	for _, e := range fallbacks {
		fb, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
		}
		group.AddFallback(e.Name, fb)
	}
	slog.Info("llm fallbacks enabled", "order", group.Names())
	return group, nil
}

func logCreated(kind, name string) {
	slog.Info("provider created", "kind", kind, "name", name)
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings accepts a YAML list of strings or a single string.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// optFloat accepts any YAML number.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// optDuration parses a Go duration string such as "1500ms". Invalid values
// are logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "option", key, "value", s, "err", err)
		return 0
	}
	return d
}
