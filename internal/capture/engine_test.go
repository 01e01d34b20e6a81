package capture

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

const testWindowSamples = 160

func testEngineConfig() EngineConfig {
	return EngineConfig{
		SamplePeriod: 200 * time.Millisecond,
		Hangover:     1500 * time.Millisecond,
		SampleRate:   16000,
		Channels:     1,
		SourceTag:    "tab",
	}
}

// window builds one classification. Loud windows carry non-zero samples so
// encoded chunks are distinguishable from silence.
func window(loud bool) Classification {
	samples := make([]int16, testWindowSamples)
	level := -60.0
	if loud {
		level = -30.0
		for i := range samples {
			samples[i] = 8000
		}
	}
	return Classification{At: time.Now(), Level: level, Loud: loud, Samples: samples}
}

// runPattern feeds loudness classifications through a fresh engine, closes
// the input and collects every emitted chunk.
func runPattern(t *testing.T, pattern []bool) []Chunk {
	t.Helper()

	in := make(chan Classification)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(testEngineConfig(), in, m, logger.NewNop())
	go e.Run(context.Background())

	for _, loud := range pattern {
		in <- window(loud)
	}
	close(in)

	var chunks []Chunk
	for c := range e.Chunks() {
		chunks = append(chunks, c)
	}
	return chunks
}

// repeat builds a loudness pattern from (loud, count) pairs
func repeat(segments ...struct {
	loud  bool
	count int
}) []bool {
	var out []bool
	for _, s := range segments {
		for i := 0; i < s.count; i++ {
			out = append(out, s.loud)
		}
	}
	return out
}

func seg(loud bool, count int) struct {
	loud  bool
	count int
} {
	return struct {
		loud  bool
		count int
	}{loud, count}
}

func TestEngineSegmentation(t *testing.T) {
	tests := []struct {
		name        string
		pattern     []bool
		wantChunks  int
		wantWindows []int // windows of audio per chunk
	}{
		{
			// 1500ms hangover at 200ms per window needs 8 silent windows
			name:        "speech closed by trailing silence",
			pattern:     repeat(seg(false, 2), seg(true, 3), seg(false, 8)),
			wantChunks:  1,
			wantWindows: []int{11},
		},
		{
			name:        "short silence gap does not split",
			pattern:     repeat(seg(true, 1), seg(false, 3), seg(true, 1), seg(false, 8)),
			wantChunks:  1,
			wantWindows: []int{13},
		},
		{
			name:       "silence only emits nothing",
			pattern:    repeat(seg(false, 12)),
			wantChunks: 0,
		},
		{
			name:        "two separated segments",
			pattern:     repeat(seg(true, 2), seg(false, 8), seg(true, 1), seg(false, 8)),
			wantChunks:  2,
			wantWindows: []int{10, 9},
		},
		{
			name:       "silence just under hangover stays open until flush",
			pattern:    repeat(seg(true, 1), seg(false, 7), seg(true, 1), seg(false, 8)),
			wantChunks: 1,
			// 7 silent windows (1400ms) never close the segment
			wantWindows: []int{17},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := runPattern(t, tt.pattern)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}

			for i, chunk := range chunks {
				if chunk.ID == "" {
					t.Error("chunk has empty ID")
				}
				if chunk.MIMEType != "audio/wav" {
					t.Errorf("chunk MIME type = %q, want audio/wav", chunk.MIMEType)
				}
				if chunk.Source != "tab" {
					t.Errorf("chunk source = %q, want tab", chunk.Source)
				}

				samples, rate, err := audio.DecodeWAV(chunk.Audio)
				if err != nil {
					t.Fatalf("chunk %d does not decode: %v", i, err)
				}
				if rate != 16000 {
					t.Errorf("chunk %d sample rate = %d, want 16000", i, rate)
				}
				if got := len(samples) / testWindowSamples; got != tt.wantWindows[i] {
					t.Errorf("chunk %d holds %d windows, want %d", i, got, tt.wantWindows[i])
				}
			}
		})
	}
}

func TestEngineStopFlushesPartialSegment(t *testing.T) {
	in := make(chan Classification)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(testEngineConfig(), in, m, logger.NewNop())
	go e.Run(context.Background())

	in <- window(true)
	in <- window(true)
	e.Command(CommandStop)

	var chunks []Chunk
	for c := range e.Chunks() {
		chunks = append(chunks, c)
	}

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	samples, _, err := audio.DecodeWAV(chunks[0].Audio)
	if err != nil {
		t.Fatalf("flushed chunk does not decode: %v", err)
	}
	if got := len(samples) / testWindowSamples; got != 2 {
		t.Errorf("flushed chunk holds %d windows, want 2", got)
	}

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down after stop")
	}
}

func TestEnginePauseDiscardsWindows(t *testing.T) {
	in := make(chan Classification)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(testEngineConfig(), in, m, logger.NewNop())
	go e.Run(context.Background())

	in <- window(true)
	e.Command(CommandPause)
	// These would extend the segment if segmentation were live
	in <- window(true)
	in <- window(true)
	e.Command(CommandResume)
	for i := 0; i < 8; i++ {
		in <- window(false)
	}
	close(in)

	var chunks []Chunk
	for c := range e.Chunks() {
		chunks = append(chunks, c)
	}

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	samples, _, err := audio.DecodeWAV(chunks[0].Audio)
	if err != nil {
		t.Fatalf("chunk does not decode: %v", err)
	}
	// 1 pre-pause window plus 8 post-resume silence windows; the 2 paused
	// windows must not appear
	if got := len(samples) / testWindowSamples; got != 9 {
		t.Errorf("chunk holds %d windows, want 9", got)
	}
}

func TestEngineContextCancelClosesChannels(t *testing.T) {
	in := make(chan Classification)
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(testEngineConfig(), in, m, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	cancel()

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine did not shut down on context cancel")
	}
}
