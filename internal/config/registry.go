package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/provider/stt"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/provider/vad"
	"github.com/groovi/groovi/pkg/provider/wake"
)

// ErrProviderNotRegistered is returned when a config names a provider no
// factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// WakeFactory builds the per-session wake detector factory. Transcript-based
// detectors receive the configured STT provider.
type WakeFactory func(entry ProviderEntry, transcriber stt.Provider) (wake.Factory, error)

// factories holds the constructors of one provider kind.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, m: make(map[string]F)}
}

func (f factories[F]) names() []string {
	names := make([]string, 0, len(f.m))
	for name := range f.m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f factories[F]) get(name string) (F, error) {
	fn, ok := f.m[name]
	if !ok {
		return fn, fmt.Errorf("%w: %s/%q (registered: %s)", ErrProviderNotRegistered, f.kind, name, strings.Join(f.names(), ", "))
	}
	return fn, nil
}

// Registry maps provider names from the config file to constructors. The
// binary registers its built-in providers at startup; tests register mocks.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	wake factories[WakeFactory]
	vad  factories[func(ProviderEntry) (vad.Detector, error)]
	stt  factories[func(ProviderEntry) (stt.Provider, error)]
	tts  factories[func(ProviderEntry) (tts.Provider, error)]
	llm  factories[func(ProviderEntry) (llm.Provider, error)]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		wake: newFactories[WakeFactory]("wake"),
		vad:  newFactories[func(ProviderEntry) (vad.Detector, error)]("vad"),
		stt:  newFactories[func(ProviderEntry) (stt.Provider, error)]("stt"),
		tts:  newFactories[func(ProviderEntry) (tts.Provider, error)]("tts"),
		llm:  newFactories[func(ProviderEntry) (llm.Provider, error)]("llm"),
	}
}

// Names returns the registered names of kind ("wake", "vad", "stt", "tts"
// or "llm"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "wake":
		return r.wake.names()
	case "vad":
		return r.vad.names()
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	case "llm":
		return r.llm.names()
	}
	return nil
}

// RegisterWake registers f under name, replacing any earlier factory. The
// other Register methods behave the same for their kind.
func (r *Registry) RegisterWake(name string, f WakeFactory) {
	r.mu.Lock()
	r.wake.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterVAD(name string, f func(ProviderEntry) (vad.Detector, error)) {
	r.mu.Lock()
	r.vad.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, f func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	r.stt.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, f func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	r.tts.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterLLM(name string, f func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	r.llm.m[name] = f
	r.mu.Unlock()
}

// build looks up entry.Name and runs the factory outside the lock, wrapping
// its error with kind and name.
func build[F any, T any](r *Registry, f *factories[F], entry ProviderEntry, call func(F) (T, error)) (T, error) {
	r.mu.RLock()
	fn, err := f.get(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := call(fn)
	if err != nil {
		return v, fmt.Errorf("config: %s/%s: %w", f.kind, entry.Name, err)
	}
	return v, nil
}

// CreateWake builds the wake detector factory named by entry.
func (r *Registry) CreateWake(entry ProviderEntry, transcriber stt.Provider) (wake.Factory, error) {
	return build(r, &r.wake, entry, func(f WakeFactory) (wake.Factory, error) { return f(entry, transcriber) })
}

// CreateVAD builds the detector named by entry.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Detector, error) {
	return build(r, &r.vad, entry, func(f func(ProviderEntry) (vad.Detector, error)) (vad.Detector, error) { return f(entry) })
}

// CreateSTT builds the transcriber named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return build(r, &r.stt, entry, func(f func(ProviderEntry) (stt.Provider, error)) (stt.Provider, error) { return f(entry) })
}

// CreateTTS builds the synthesiser named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return build(r, &r.tts, entry, func(f func(ProviderEntry) (tts.Provider, error)) (tts.Provider, error) { return f(entry) })
}

// CreateLLM builds the model named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return build(r, &r.llm, entry, func(f func(ProviderEntry) (llm.Provider, error)) (llm.Provider, error) { return f(entry) })
}
