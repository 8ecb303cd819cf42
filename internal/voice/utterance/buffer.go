// Package utterance accumulates the audio of a single spoken utterance and
// hands it to STT once the speaker stops.
package utterance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/stt"
)

// DefaultMinDuration is the shortest utterance worth transcribing.
const DefaultMinDuration = 500 * time.Millisecond

// Buffer collects capture-format PCM chunks between speech start and speech
// end. It is owned by one session and is not safe for concurrent use.
type Buffer struct {
	chunks   [][]byte
	size     int
	minBytes int
}

// New creates a Buffer that ignores payloads shorter than minDuration.
// A non-positive minDuration selects [DefaultMinDuration].
func New(minDuration time.Duration) *Buffer {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	return &Buffer{minBytes: audio.Capture.Bytes(minDuration)}
}

// Append copies chunk into the buffer.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, append([]byte(nil), chunk...))
	b.size += len(chunk)
}

// Drain returns the buffered audio as one contiguous payload and clears the
// buffer.
func (b *Buffer) Drain() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	b.Clear()
	return out
}

// Clear discards buffered audio.
func (b *Buffer) Clear() {
	b.chunks = nil
	b.size = 0
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return b.size }

// Duration returns the playback length of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(int64(b.size) * int64(time.Second) / int64(audio.Capture.BytesPerSecond()))
}

// Transcribe drains the buffer and transcribes it with p. Payloads shorter
// than the minimum duration yield "" without calling p.
func (b *Buffer) Transcribe(ctx context.Context, p stt.Provider) (string, error) {
	pcm := b.Drain()
	if len(pcm) < b.minBytes {
		return "", nil
	}
	text, err := p.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("utterance: transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}
