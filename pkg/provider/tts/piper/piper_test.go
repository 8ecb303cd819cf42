package piper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts/piper"
	"github.com/groovi/groovi/pkg/types"
)

// fakePiper answers each synthesis request with a WAV whose samples all equal
// the length of the requested text, so ordering can be checked.
func fakePiper(t *testing.T, rate int, delay func(text string) time.Duration) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/voices":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"en_US-lessac-medium": map[string]any{},
				"de_DE-thorsten-low":  map[string]any{},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/":
			var req struct {
				Text  string `json:"text"`
				Voice string `json:"voice"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			mu.Lock()
			texts = append(texts, req.Text)
			mu.Unlock()
			if delay != nil {
				time.Sleep(delay(req.Text))
			}
			pcm := make([]byte, 8)
			for i := 0; i < 4; i++ {
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(len(req.Text)))
			}
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(audio.EncodeWAV(pcm, audio.Format{SampleRate: rate, Channels: 1}))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &texts
}

func collect(ch <-chan []byte) []byte {
	var out []byte
	for b := range ch {
		out = append(out, b...)
	}
	return out
}

func TestSynthesizeStream_SentenceOrder(t *testing.T) {
	t.Parallel()

	// The first sentence is slower than the second; output must stay ordered.
	srv, texts := fakePiper(t, piper.DefaultSampleRate, func(text string) time.Duration {
		if text == "Hello there." {
			return 50 * time.Millisecond
		}
		return 0
	})
	p, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	textCh := make(chan string, 3)
	textCh <- "Hello there. "
	textCh <- "Hi! And a"
	textCh <- " tail"
	close(textCh)

	out, err := p.SynthesizeStream(context.Background(), textCh, types.VoiceProfile{ID: "en_US-lessac-medium"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := collect(out)
	if len(pcm) != 24 {
		t.Fatalf("pcm length = %d, want 24", len(pcm))
	}
	want := []uint16{12, 3, 10}
	for i, w := range want {
		if got := binary.LittleEndian.Uint16(pcm[i*8:]); got != w {
			t.Errorf("segment %d sample = %d, want %d", i, got, w)
		}
	}
	if len(*texts) != 3 {
		t.Errorf("requests = %d, want 3", len(*texts))
	}
}

func TestSynthesizeStream_Resamples(t *testing.T) {
	t.Parallel()

	srv, _ := fakePiper(t, 16000, nil)
	p, _ := piper.New(srv.URL, piper.WithSampleRate(32000))
	if got := p.Format(); got.SampleRate != 32000 || got.Channels != 1 {
		t.Fatalf("Format = %+v", got)
	}

	textCh := make(chan string, 1)
	textCh <- "Hi."
	close(textCh)
	out, _ := p.SynthesizeStream(context.Background(), textCh, types.VoiceProfile{})
	if pcm := collect(out); len(pcm) != 16 {
		t.Errorf("resampled length = %d, want 16", len(pcm))
	}
}

func TestSynthesizeStream_ServerErrorClosesStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := piper.New(srv.URL)
	textCh := make(chan string, 1)
	textCh <- "Anything."
	close(textCh)
	out, err := p.SynthesizeStream(context.Background(), textCh, types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if pcm := collect(out); len(pcm) != 0 {
		t.Errorf("got %d bytes from failing server", len(pcm))
	}
}

func TestSynthesizeStream_Cancel(t *testing.T) {
	t.Parallel()

	srv, _ := fakePiper(t, piper.DefaultSampleRate, nil)
	p, _ := piper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	textCh := make(chan string) // never closed
	out, _ := p.SynthesizeStream(ctx, textCh, types.VoiceProfile{})
	cancel()

	select {
	case _, ok := <-out:
		for ok {
			_, ok = <-out
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv, _ := fakePiper(t, piper.DefaultSampleRate, nil)
	p, _ := piper.New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "de_DE-thorsten-low" || voices[1].Provider != "piper" {
		t.Errorf("voices = %+v", voices)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := piper.New(""); err == nil {
		t.Error("expected error for empty URL")
	}
}
