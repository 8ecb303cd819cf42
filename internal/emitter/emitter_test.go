package emitter_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/groovi/groovi/internal/emitter"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/pkg/audio"
	ttsmock "github.com/groovi/groovi/pkg/provider/tts/mock"
	"github.com/groovi/groovi/pkg/types"
)

func drain(t *testing.T, s *emitter.Stream) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(2 * time.Second)
	for {
		select {
		case seg, ok := <-s.C():
			if !ok {
				return out
			}
			out = append(out, seg)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestSpeak_WholeUtterance(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Chunks: [][]byte{make([]byte, 100), make([]byte, 200)}}
	e := emitter.New(p, types.VoiceProfile{ID: "v"})

	segs := drain(t, e.Speak(context.Background(), "Hello there."))
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	wav := segs[0]
	if len(wav) != audio.WAVHeaderSize+300 {
		t.Errorf("wav length = %d, want %d", len(wav), audio.WAVHeaderSize+300)
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != 336 {
		t.Errorf("ChunkSize = %d, want 336", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 22050 {
		t.Errorf("SampleRate = %d, want 22050", got)
	}
	if texts := p.SpokenTexts(); len(texts) != 1 || texts[0] != "Hello there." {
		t.Errorf("spoken = %q", texts)
	}
}

func TestSpeak_Segmented(t *testing.T) {
	t.Parallel()

	// 100 ms at 16 kHz mono = 3200 bytes per segment.
	chunk := make([]byte, 1600)
	p := &ttsmock.Provider{
		Chunks:    [][]byte{chunk, chunk, chunk, chunk, chunk},
		PCMFormat: audio.Capture,
	}
	e := emitter.New(p, types.VoiceProfile{}, emitter.WithSegment(100*time.Millisecond))

	segs := drain(t, e.Speak(context.Background(), "Long answer."))
	want := []int{3200, 3200, 1600}
	if len(segs) != len(want) {
		t.Fatalf("segments = %d, want %d", len(segs), len(want))
	}
	for i, w := range want {
		if got := len(segs[i]) - audio.WAVHeaderSize; got != w {
			t.Errorf("segment %d pcm = %d, want %d", i, got, w)
		}
	}
}

func TestSpeak_Stop(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Chunks: [][]byte{make([]byte, 100)}, Block: true}
	e := emitter.New(p, types.VoiceProfile{}, emitter.WithSegment(time.Millisecond))

	s := e.Speak(context.Background(), "Interrupt me.")
	if _, ok := <-s.C(); !ok {
		t.Fatal("expected a first segment")
	}
	s.Stop()
	s.Stop()
	if segs := drain(t, s); len(segs) != 0 {
		t.Errorf("got %d segments after Stop", len(segs))
	}
	deadline := time.Now().Add(time.Second)
	for p.CancelCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.CancelCount() != 1 {
		t.Errorf("provider saw %d cancellations, want 1", p.CancelCount())
	}
}

func TestSpeak_NoAudio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		e    *emitter.Emitter
		text string
	}{
		{"nil provider", emitter.New(nil, types.VoiceProfile{}), "hi"},
		{"empty text", emitter.New(&ttsmock.Provider{Chunks: [][]byte{{1}}}, types.VoiceProfile{}), ""},
		{"start error", emitter.New(&ttsmock.Provider{SynthesizeErr: errors.New("down")}, types.VoiceProfile{}), "hi"},
		{"no chunks", emitter.New(&ttsmock.Provider{}, types.VoiceProfile{}), "hi"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if segs := drain(t, tc.e.Speak(context.Background(), tc.text)); len(segs) != 0 {
				t.Errorf("segments = %d, want 0", len(segs))
			}
		})
	}
}

// ttsRequests returns groovi.provider.requests for kind tts, keyed by status.
func ttsRequests(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if met.Name != "groovi.provider.requests" || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				kind, _ := dp.Attributes.Value(attribute.Key("kind"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				if kind.AsString() == "tts" {
					out[status.AsString()] += dp.Value
				}
			}
		}
	}
	return out
}

func TestSpeak_RecordsMetrics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		p      *ttsmock.Provider
		stop   bool
		status string
	}{
		{"spoken", &ttsmock.Provider{Chunks: [][]byte{make([]byte, 100)}}, false, "ok"},
		{"empty stream", &ttsmock.Provider{}, false, "error"},
		{"start error", &ttsmock.Provider{SynthesizeErr: errors.New("down")}, false, "error"},
		{"stopped", &ttsmock.Provider{Chunks: [][]byte{make([]byte, 100)}, Block: true}, true, "ok"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
			m, err := observe.NewMetrics(mp)
			if err != nil {
				t.Fatalf("NewMetrics: %v", err)
			}

			e := emitter.New(tc.p, types.VoiceProfile{}, emitter.WithMetrics(m), emitter.WithSegment(time.Millisecond))
			s := e.Speak(context.Background(), "Hello.")
			if tc.stop {
				<-s.C()
				s.Stop()
			}
			drain(t, s)

			// The call is recorded after the channel closes.
			deadline := time.Now().Add(2 * time.Second)
			got := ttsRequests(t, reader)
			for got[tc.status] == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
				got = ttsRequests(t, reader)
			}
			if len(got) != 1 || got[tc.status] != 1 {
				t.Errorf("tts requests = %v, want one %s", got, tc.status)
			}
		})
	}
}
