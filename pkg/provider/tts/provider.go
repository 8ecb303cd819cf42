// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Piper server,
// ElevenLabs) and presents a uniform streaming interface. SynthesizeStream
// accepts a channel of text fragments and returns a channel of raw PCM audio
// as it becomes available; the streaming response emitter wraps that PCM in
// WAV containers for the client.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a channel
	// that emits raw 16-bit PCM in Format() as it is synthesised.
	//
	// The returned channel is closed when all text has been synthesised, when
	// synthesis fails, or when ctx is cancelled. Cancelling ctx is the stop
	// signal: implementations release network and synthesis resources promptly.
	// The caller must drain the channel or cancel ctx.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// Format reports the PCM format of synthesised audio.
	Format() audio.Format
}
