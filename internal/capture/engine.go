package capture

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

type engineState int

const (
	stateIdle engineState = iota
	stateSpeaking
)

// EngineConfig contains configuration for the segmentation engine
type EngineConfig struct {
	SamplePeriod time.Duration // audio duration represented by one classification
	Hangover     time.Duration // silence required to close a segment, default 1500ms
	SampleRate   int
	Channels     int
	SourceTag    string // "tab" or "microphone", stamped onto emitted chunks
}

// Engine consumes loudness classifications and cuts the stream into
// speech-bounded chunks. Speech opens a segment; a silence run lasting at
// least the hangover closes it. The engine owns the encoder buffer for the
// open segment and emits each finished chunk exactly once.
//
// Classification changes are only observed at sample boundaries, so a spike
// shorter than the sampling period cannot open or close a segment more than
// once per period. A segment with zero buffered samples is never emitted.
type Engine struct {
	cfg     EngineConfig
	in      <-chan Classification
	cmds    chan CommandKind
	chunks  chan Chunk
	done    chan struct{}
	metrics *metrics.Metrics
	logger  *logger.Logger

	state      engineState
	paused     bool
	buf        []int16
	silenceFor time.Duration
}

// NewEngine creates a new segmentation engine consuming the given
// classification stream
func NewEngine(cfg EngineConfig, in <-chan Classification, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		in:      in,
		cmds:    make(chan CommandKind),
		chunks:  make(chan Chunk, 16),
		done:    make(chan struct{}),
		metrics: m,
		logger:  log.Named("engine"),
	}
}

// Chunks returns the stream of finished chunks. Closed when the engine exits.
func (e *Engine) Chunks() <-chan Chunk {
	return e.chunks
}

// Done is closed when the engine has fully shut down
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Command delivers an external command to the engine. Safe to call after
// the engine has exited; the command is then discarded.
func (e *Engine) Command(cmd CommandKind) {
	select {
	case e.cmds <- cmd:
	case <-e.done:
	}
}

// Run processes classifications and commands until stopped. The chunk
// channel is closed on exit.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	defer close(e.chunks)

	e.logger.Info("Starting segmentation engine",
		logger.Duration("hangover", e.cfg.Hangover),
		logger.Duration("sample_period", e.cfg.SamplePeriod))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Segmentation engine stopped by context")
			return

		case cmd := <-e.cmds:
			switch cmd {
			case CommandPause:
				if !e.paused {
					e.paused = true
					e.silenceFor = 0
					e.logger.Info("Segmentation paused")
				}
			case CommandResume:
				if e.paused {
					e.paused = false
					e.logger.Info("Segmentation resumed")
				}
			case CommandStop:
				// Flush whatever is buffered, even a short segment.
				e.finalize(time.Now())
				e.logger.Info("Segmentation engine stopped")
				return
			}

		case c, ok := <-e.in:
			if !ok {
				// Classification stream ended underneath us; flush the open
				// segment so buffered speech is not lost.
				e.finalize(time.Now())
				return
			}
			if e.paused {
				continue
			}
			e.observe(c)
		}
	}
}

// observe applies one classification to the segmentation state machine
func (e *Engine) observe(c Classification) {
	switch e.state {
	case stateIdle:
		if c.Loud {
			e.logger.Debug("Speech started", Float64("level_db", c.Level))
			e.buf = append(e.buf[:0], c.Samples...)
			e.silenceFor = 0
			e.state = stateSpeaking
		}

	case stateSpeaking:
		e.buf = append(e.buf, c.Samples...)

		if c.Loud {
			// Speech resumed; discard any pending silence run.
			e.silenceFor = 0
			return
		}

		e.silenceFor += e.cfg.SamplePeriod
		if e.silenceFor >= e.cfg.Hangover {
			e.finalize(c.At)
		}
	}
}

// finalize closes the open segment, encodes it and emits one chunk. A
// segment with no buffered samples is dropped silently.
func (e *Engine) finalize(at time.Time) {
	defer func() {
		e.buf = nil
		e.silenceFor = 0
		e.state = stateIdle
	}()

	if e.state != stateSpeaking || len(e.buf) == 0 {
		return
	}

	wav, err := audio.EncodeWAV(e.buf, e.cfg.SampleRate, e.cfg.Channels)
	if err != nil {
		e.logger.Error("Failed to encode chunk", Error(err))
		return
	}

	chunk := Chunk{
		ID:        uuid.NewString(),
		Audio:     wav,
		MIMEType:  "audio/wav",
		Source:    e.cfg.SourceTag,
		CreatedAt: at,
	}

	e.metrics.ChunksEmitted.Inc()
	e.metrics.ChunkBytes.Observe(float64(len(wav)))

	e.logger.Info("Chunk finalized",
		String("chunk_id", chunk.ID),
		Int("bytes", len(wav)))

	e.chunks <- chunk
}
