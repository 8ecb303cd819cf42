package dispatch

import (
	"sync"

	"github.com/groovi/groovi/pkg/types"
)

// DefaultHistorySize is the number of turns kept when no size is configured.
const DefaultHistorySize = 10

// History is a fixed-capacity FIFO ring of conversation turns. Adding to a
// full ring evicts the oldest entry. All methods are safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	ring  []types.Message
	start int
	n     int
}

// NewHistory creates a ring holding at most size entries. A non-positive
// size selects [DefaultHistorySize].
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{ring: make([]types.Message, size)}
}

// Add appends a turn, evicting the oldest one when the ring is full.
func (h *History) Add(role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := types.Message{Role: role, Content: text}
	if h.n < len(h.ring) {
		h.ring[(h.start+h.n)%len(h.ring)] = m
		h.n++
		return
	}
	h.ring[h.start] = m
	h.start = (h.start + 1) % len(h.ring)
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.ring) }

// Messages returns all stored turns, oldest first.
func (h *History) Messages() []types.Message {
	return h.Last(h.Cap())
}

// Last returns up to n of the most recent turns, oldest first.
func (h *History) Last(n int) []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > h.n {
		n = h.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]types.Message, n)
	first := h.start + h.n - n
	for i := range n {
		out[i] = h.ring[(first+i)%len(h.ring)]
	}
	return out
}
