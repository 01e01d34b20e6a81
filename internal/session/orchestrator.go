package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/capture"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/internal/storage/sqlite"
	"github.com/yurib/scribeline/internal/transcription"
	"github.com/yurib/scribeline/internal/websocket"
	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)

// Transcriber turns one chunk into text. *transcription.Dispatcher
// satisfies it.
type Transcriber interface {
	Dispatch(ctx context.Context, req transcription.Request) (string, error)
}

// Backlog holds chunks produced while offline. *queue.Offline satisfies it.
type Backlog interface {
	Enqueue(chunk capture.Chunk) error
	Drain(ctx context.Context, handle func(ctx context.Context, record *sqlite.ChunkRecord) error) (int, error)
	Depth() (int, error)
}

// Connectivity reports backend reachability. *connectivity.Watcher
// satisfies it.
type Connectivity interface {
	Online() bool
	Restored() <-chan struct{}
}

// Notifier pushes messages to the display surface. *websocket.Server
// satisfies it.
type Notifier interface {
	Broadcast(message *websocket.Message)
}

// Store is the persistence surface the orchestrator needs
type Store interface {
	SaveSession(record *sqlite.SessionRecord) error
	LoadSession() (*sqlite.SessionRecord, error)
	AppendTranscript(record *sqlite.TranscriptRecord) (int64, error)
	Transcripts(limit, offset int) ([]*sqlite.TranscriptRecord, error)
	ResetTranscripts() error
}

// SourceFactory opens a capture source for the requested session. Injected
// so tests can run sessions against synthetic audio.
type SourceFactory func(cfg StartConfig) (audio.CaptureSource, error)

// CaptureSettings groups the per-session capture pipeline configuration
type CaptureSettings struct {
	Monitor capture.MonitorConfig
	Engine  capture.EngineConfig
}

// Orchestrator owns the session lifecycle. It runs at most one capture
// pipeline at a time, routes finished chunks to the dispatcher or the
// offline backlog, persists transcripts and session state, and pushes
// updates to connected displays.
type Orchestrator struct {
	store      Store
	transcribe Transcriber
	backlog    Backlog
	conn       Connectivity
	notifier   Notifier
	sources    SourceFactory
	captureCfg CaptureSettings
	metrics    *metrics.Metrics
	logger     *logger.Logger

	// now is replaced in tests for deterministic elapsed-time accounting
	now func() time.Time

	mu             sync.Mutex
	state          State
	cfg            StartConfig
	startedAt      time.Time
	segmentStart   time.Time
	secondsElapsed int
	pipeline       *capture.Pipeline
	cancelPipeline context.CancelFunc

	// baseCtx scopes dispatch goroutines to Run's lifetime
	baseCtx context.Context
}

// NewOrchestrator creates the session orchestrator and reconciles any
// session state left over from a previous process. A persisted recording
// or paused session cannot be resumed after a restart because the capture
// source is gone, so it is reset to idle; the transcript log is kept.
func NewOrchestrator(
	store Store,
	transcribe Transcriber,
	backlog Backlog,
	conn Connectivity,
	notifier Notifier,
	sources SourceFactory,
	captureCfg CaptureSettings,
	m *metrics.Metrics,
	log *logger.Logger,
) (*Orchestrator, error) {
	o := &Orchestrator{
		store:      store,
		transcribe: transcribe,
		backlog:    backlog,
		conn:       conn,
		notifier:   notifier,
		sources:    sources,
		captureCfg: captureCfg,
		metrics:    m,
		logger:     log.Named("session"),
		now:        time.Now,
		state:      StateIdle,
		baseCtx:    context.Background(),
	}

	record, err := store.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	if record != nil && record.State != string(StateIdle) {
		o.logger.Warn("Found interrupted session from previous run, resetting to idle",
			String("persisted_state", record.State))
		record.State = string(StateIdle)
		if err := store.SaveSession(record); err != nil {
			return nil, fmt.Errorf("failed to reset interrupted session: %w", err)
		}
	}

	return o, nil
}

// Run reacts to connectivity restoration until the context is cancelled.
// Start/Stop/Pause/Resume remain callable concurrently from the API.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.conn.Restored():
			o.drainBacklog(ctx)
		}
	}
}

// Start begins a new session. Only one session may exist at a time.
func (o *Orchestrator) Start(cfg StartConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return ErrAlreadyRunning
	}
	if cfg.Credential == "" {
		return errors.New("credential is required")
	}
	if cfg.Source != SourceTab && cfg.Source != SourceMicrophone {
		return fmt.Errorf("unknown audio source: %q", cfg.Source)
	}

	source, err := o.sources(cfg)
	if err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}

	pipeCtx, cancel := context.WithCancel(context.Background())

	// Device access is part of the start contract; a denied device fails
	// the start call itself, not a later error notice.
	if err := source.Acquire(pipeCtx); err != nil {
		cancel()
		source.Close()
		return fmt.Errorf("failed to acquire capture source: %w", err)
	}

	engCfg := o.captureCfg.Engine
	engCfg.SourceTag = cfg.Source

	pipeline := capture.NewPipeline(source, o.captureCfg.Monitor, engCfg, o.metrics, o.logger)

	now := o.now()
	o.state = StateRecording
	o.cfg = cfg
	o.startedAt = now
	o.segmentStart = now
	o.secondsElapsed = 0
	o.pipeline = pipeline
	o.cancelPipeline = cancel

	// A new session starts with an empty transcript
	if err := o.store.ResetTranscripts(); err != nil {
		o.logger.Error("Failed to reset transcripts", Error(err))
	}
	o.persistLocked()

	go pipeline.Run(pipeCtx)
	go o.consume(pipeline)

	o.logger.Info("Session started", String("source", cfg.Source))
	o.broadcastStatusLocked()

	return nil
}

// Stop ends the session. The engine flushes any partial chunk before the
// device is released. Stop is idempotent: on an idle session it changes
// nothing but still broadcasts session_stopped so displays reset.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopLocked("stopped by request")
}

func (o *Orchestrator) stopLocked(reason string) error {
	if o.state == StateIdle {
		// Nothing to tear down or persist, but downstream displays still
		// get the signal so they can reset.
		o.notifier.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeSessionStopped,
			Data: map[string]any{"reason": reason},
		})
		o.broadcastStatusLocked()
		return nil
	}

	if o.state == StateRecording {
		o.secondsElapsed += int(o.now().Sub(o.segmentStart).Seconds())
	}

	// Ask the engine to flush, then tear the pipeline down. The flush
	// command is processed before the chunk channel closes, so the final
	// partial chunk still reaches the consumer.
	o.pipeline.Command(capture.CommandStop)
	cancel := o.cancelPipeline
	done := o.pipeline.Done()
	go func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		cancel()
	}()

	o.state = StateIdle
	o.pipeline = nil
	o.cancelPipeline = nil
	o.persistLocked()

	o.logger.Info("Session stopped", String("reason", reason))
	o.notifier.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSessionStopped,
		Data: map[string]any{"reason": reason},
	})
	o.broadcastStatusLocked()

	return nil
}

// Pause suspends segmentation. The capture device stays open so resume is
// instant; windows read while paused are discarded.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateIdle {
		return ErrNoSession
	}
	if o.state != StateRecording {
		return ErrNotRecording
	}

	o.secondsElapsed += int(o.now().Sub(o.segmentStart).Seconds())
	o.state = StatePaused
	o.pipeline.Command(capture.CommandPause)
	o.persistLocked()

	o.logger.Info("Session paused")
	o.broadcastStatusLocked()
	return nil
}

// Resume continues a paused session
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateIdle {
		return ErrNoSession
	}
	if o.state != StatePaused {
		return ErrNotPaused
	}

	o.segmentStart = o.now()
	o.state = StateRecording
	o.pipeline.Command(capture.CommandResume)
	o.persistLocked()

	o.logger.Info("Session resumed")
	o.broadcastStatusLocked()
	return nil
}

// Snapshot returns the current session view
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:  o.state,
		Online: o.conn.Online(),
	}

	if depth, err := o.backlog.Depth(); err == nil {
		snap.QueueDepth = depth
	}

	if o.state == StateIdle {
		return snap
	}

	snap.Source = o.cfg.Source
	started := o.startedAt
	snap.StartedAt = &started

	elapsed := o.secondsElapsed
	if o.state == StateRecording {
		elapsed += int(o.now().Sub(o.segmentStart).Seconds())
	}
	snap.SecondsElapsed = elapsed

	return snap
}

// Transcripts returns persisted transcript entries in arrival order
func (o *Orchestrator) Transcripts(limit, offset int) ([]*sqlite.TranscriptRecord, error) {
	return o.store.Transcripts(limit, offset)
}

// consume routes chunks and capture failures for one pipeline. It exits
// when the pipeline's chunk channel closes.
func (o *Orchestrator) consume(pipeline *capture.Pipeline) {
	chunks := pipeline.Chunks()
	captureErrs := pipeline.Errors()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// Drain any capture error that raced with channel close
				select {
				case err := <-captureErrs:
					o.handleCaptureError(pipeline, err)
				default:
				}
				return
			}
			o.routeChunk(chunk)

		case err := <-captureErrs:
			o.handleCaptureError(pipeline, err)
		}
	}
}

func (o *Orchestrator) handleCaptureError(pipeline *capture.Pipeline, err error) {
	if err == nil {
		return
	}

	o.logger.Error("Capture failed", Error(err))
	o.notifier.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeErrorNotice,
		Data: map[string]any{"message": fmt.Sprintf("audio capture failed: %v", err)},
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	// Only stop if this pipeline is still the active one
	if o.pipeline == pipeline {
		o.stopLocked("capture failure")
	}
}

// routeChunk sends a finished chunk to the dispatcher when the backends
// look reachable, otherwise to the durable backlog
func (o *Orchestrator) routeChunk(chunk capture.Chunk) {
	o.mu.Lock()
	credential := o.cfg.Credential
	ctx := o.baseCtx
	o.mu.Unlock()

	if !o.conn.Online() {
		if err := o.backlog.Enqueue(chunk); err != nil {
			o.logger.Error("Failed to queue chunk", String("chunk_id", chunk.ID), Error(err))
		}
		return
	}

	// Dispatch concurrently so a slow provider never stalls segmentation
	go func() {
		text, err := o.transcribe.Dispatch(ctx, transcription.Request{
			Audio:      chunk.Audio,
			MIMEType:   chunk.MIMEType,
			Credential: credential,
		})
		if err != nil {
			o.handleDispatchFailure(chunk, err)
			return
		}
		o.recordTranscript(text, chunk.Source, chunk.CreatedAt)
	}()
}

func (o *Orchestrator) handleDispatchFailure(chunk capture.Chunk, err error) {
	var exhausted *transcription.ExhaustedError
	if !errors.As(err, &exhausted) {
		// Context cancellation during shutdown, nothing to surface
		o.logger.Warn("Dispatch aborted", String("chunk_id", chunk.ID), Error(err))
		return
	}

	o.logger.Error("All providers failed for chunk",
		String("chunk_id", chunk.ID),
		Error(err))

	o.notifier.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeErrorNotice,
		Data: map[string]any{"message": exhausted.Error()},
	})

	// Every backend is rejecting us; keeping the session running would
	// only pile up failures
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		o.stopLocked("transcription providers exhausted")
	}
}

// recordTranscript persists one transcript line and pushes it to displays
func (o *Orchestrator) recordTranscript(text, source string, at time.Time) {
	id, err := o.store.AppendTranscript(&sqlite.TranscriptRecord{
		CreatedAt: at,
		Content:   text,
		Source:    source,
	})
	if err != nil {
		o.logger.Error("Failed to persist transcript", Error(err))
		return
	}

	o.notifier.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeTranscriptUpdate,
		Data: map[string]any{
			"id":        id,
			"text":      text,
			"source":    source,
			"timestamp": at,
		},
	})
}

// drainBacklog dispatches every queued chunk after connectivity returns.
// A chunk that still fails is logged and dropped; backlog failures never
// stop a live session.
func (o *Orchestrator) drainBacklog(ctx context.Context) {
	o.mu.Lock()
	credential := o.cfg.Credential
	o.mu.Unlock()

	if credential == "" {
		record, err := o.store.LoadSession()
		if err != nil || record == nil || record.Credential == "" {
			o.logger.Warn("No credential available for backlog drain")
			return
		}
		credential = record.Credential
	}

	succeeded, err := o.backlog.Drain(ctx, func(ctx context.Context, record *sqlite.ChunkRecord) error {
		text, err := o.transcribe.Dispatch(ctx, transcription.Request{
			Audio:      record.Audio,
			MIMEType:   record.MIMEType,
			Credential: credential,
		})
		if err != nil {
			return err
		}
		o.recordTranscript(text, record.Source, record.CreatedAt)
		return nil
	})
	if err != nil {
		o.logger.Error("Backlog drain failed", Error(err))
		return
	}

	if succeeded > 0 {
		o.logger.Info("Backlog drained", Int("transcribed", succeeded))
	}

	o.mu.Lock()
	o.broadcastStatusLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) persistLocked() {
	record := &sqlite.SessionRecord{
		State:          string(o.state),
		AudioSource:    o.cfg.Source,
		Credential:     o.cfg.Credential,
		StartedAt:      o.startedAt,
		SecondsElapsed: o.secondsElapsed,
	}
	if o.state == StatePaused {
		paused := o.now()
		record.PausedAt = &paused
	}

	if err := o.store.SaveSession(record); err != nil {
		o.logger.Error("Failed to persist session state", Error(err))
	}
}

func (o *Orchestrator) broadcastStatusLocked() {
	snap := o.snapshotLocked()
	o.notifier.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeStatus,
		Data: map[string]any{
			"state":           string(snap.State),
			"source":          snap.Source,
			"seconds_elapsed": snap.SecondsElapsed,
			"queue_depth":     snap.QueueDepth,
			"online":          snap.Online,
		},
	})
}
