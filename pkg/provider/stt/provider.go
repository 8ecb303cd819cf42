// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one complete utterance of 16 kHz mono PCM into text. The
// session decides where an utterance starts and ends (see the boundary and
// utterance packages); providers only transcribe. This keeps batch engines
// such as whisper.cpp simple and lets a single loaded model serve every
// session.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in pcm (16-bit little-endian mono at
	// the provider's configured sample rate). An empty string with a nil error
	// means no speech was recognised.
	//
	// Returns an error if the backend fails or ctx is cancelled before the
	// result arrives.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}
