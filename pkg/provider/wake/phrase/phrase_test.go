package phrase

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	sttmock "github.com/groovi/groovi/pkg/provider/stt/mock"
)

func loud(n int) []byte {
	b := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		v := int16(4000)
		if (i/2)%2 == 1 {
			v = -4000
		}
		binary.LittleEndian.PutUint16(b[i:], uint16(v))
	}
	return b
}

func TestMatcher(t *testing.T) {
	t.Parallel()

	m := newMatcher([]string{DefaultPhrase}, 0.70, 0.88)
	tests := []struct {
		transcript string
		want       bool
	}{
		{"hey groovy", true},
		{"Hey, Groovi!", true},
		{"hey groo vee", true},
		{"hey google", false},
		{"play some music", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.transcript, func(t *testing.T) {
			t.Parallel()
			if _, got := m.match(tc.transcript); got != tc.want {
				t.Errorf("match(%q) = %v, want %v", tc.transcript, got, tc.want)
			}
		})
	}
}

func TestDetector_StrideAndHit(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Queue: []string{"what", "hey groovy"}}
	d, err := New(p, WithStride(100*time.Millisecond), WithWindow(300*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunk := loud(1600) // 50 ms
	hit, _ := d.Detect(chunk)
	if hit || p.CallCount() != 0 {
		t.Fatalf("first half-stride: hit=%v calls=%d", hit, p.CallCount())
	}
	hit, _ = d.Detect(chunk)
	if hit || p.CallCount() != 1 {
		t.Fatalf("first stride: hit=%v calls=%d", hit, p.CallCount())
	}
	d.Detect(chunk)
	hit, err = d.Detect(chunk)
	if err != nil || !hit {
		t.Fatalf("second stride: hit=%v err=%v", hit, err)
	}

	// The window is bounded.
	for i := 0; i < 10; i++ {
		d.Detect(chunk)
	}
	p.Queue = nil
	for _, call := range p.Calls {
		if len(call) > 9600 {
			t.Errorf("transcribed %d bytes, window is 9600", len(call))
		}
	}
}

func TestDetector_QuietWindowSkipsSTT(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Text: "hey groovi"}
	d, _ := New(p, WithStride(100*time.Millisecond), WithWindow(100*time.Millisecond))
	hit, err := d.Detect(make([]byte, 3200))
	if hit || err != nil || p.CallCount() != 0 {
		t.Errorf("silence: hit=%v err=%v calls=%d", hit, err, p.CallCount())
	}
}

func TestDetector_ResetClearsPending(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Text: "hey groovi"}
	d, _ := New(p, WithStride(100*time.Millisecond), WithWindow(100*time.Millisecond))
	d.Detect(loud(1600))
	d.Reset()
	d.Reset()
	d.Detect(loud(1600))
	if p.CallCount() != 0 {
		t.Errorf("calls = %d after reset, want 0", p.CallCount())
	}
}

func TestDetector_STTError(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Err: errors.New("boom")}
	d, _ := New(p, WithStride(100*time.Millisecond), WithWindow(100*time.Millisecond))
	if _, err := d.Detect(loud(3200)); err == nil {
		t.Error("expected error from failing STT")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Error("nil provider accepted")
	}
	if _, err := New(&sttmock.Provider{}, WithStride(time.Second), WithWindow(time.Millisecond)); err == nil {
		t.Error("window < stride accepted")
	}
	if _, err := New(&sttmock.Provider{}, WithPhrases("  ", "!!")); err == nil {
		t.Error("empty phrases accepted")
	}
}
