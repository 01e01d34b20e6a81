package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yurib/scribeline/internal/capture"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/internal/storage/sqlite"
	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)

// Store is the persistence surface the queue needs. *sqlite.Storage
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	EnqueueChunk(record *sqlite.ChunkRecord) (int64, error)
	PendingChunks() ([]*sqlite.ChunkRecord, error)
	ClearChunksThrough(maxID int64) error
	CountPendingChunks() (int, error)
}

// Offline is a durable FIFO backlog for chunks produced while no
// transcription backend is reachable. Chunks are held in SQLite so a
// crash between enqueue and drain loses nothing.
type Offline struct {
	store   Store
	metrics *metrics.Metrics
	logger  *logger.Logger

	// draining guards against overlapping drains; a second connectivity
	// flap during a drain must not double-dispatch the snapshot
	draining sync.Mutex
}

// NewOffline creates a new offline queue over the given store
func NewOffline(store Store, m *metrics.Metrics, log *logger.Logger) *Offline {
	return &Offline{
		store:   store,
		metrics: m,
		logger:  log.Named("queue"),
	}
}

// Enqueue persists one chunk at the tail of the backlog
func (q *Offline) Enqueue(chunk capture.Chunk) error {
	record := &sqlite.ChunkRecord{
		ChunkID:   chunk.ID,
		Audio:     chunk.Audio,
		MIMEType:  chunk.MIMEType,
		Source:    chunk.Source,
		CreatedAt: chunk.CreatedAt,
	}

	id, err := q.store.EnqueueChunk(record)
	if err != nil {
		return fmt.Errorf("failed to enqueue chunk: %w", err)
	}

	q.metrics.QueuedChunks.Inc()
	q.refreshDepth()

	q.logger.Info("Chunk queued for later transcription",
		String("chunk_id", chunk.ID),
		Int64("queue_row", id),
		Int("bytes", len(chunk.Audio)))

	return nil
}

// Depth returns the current backlog size
func (q *Offline) Depth() (int, error) {
	return q.store.CountPendingChunks()
}

// Drain snapshots the backlog and dispatches every chunk in it through
// handle, all concurrently. It waits for every dispatch to settle, then
// removes the snapshot regardless of individual outcomes; a chunk whose
// dispatch failed is logged and dropped rather than retried forever.
// Chunks enqueued after the snapshot stay queued for the next drain.
// Returns the number of chunks handled successfully.
func (q *Offline) Drain(ctx context.Context, handle func(ctx context.Context, record *sqlite.ChunkRecord) error) (int, error) {
	q.draining.Lock()
	defer q.draining.Unlock()

	pending, err := q.store.PendingChunks()
	if err != nil {
		return 0, fmt.Errorf("failed to read backlog: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	started := time.Now()
	q.logger.Info("Draining offline backlog", Int("chunks", len(pending)))

	var wg sync.WaitGroup
	results := make([]error, len(pending))

	for i, record := range pending {
		wg.Add(1)
		go func(i int, record *sqlite.ChunkRecord) {
			defer wg.Done()
			results[i] = handle(ctx, record)
		}(i, record)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range results {
		if err != nil {
			q.logger.Warn("Backlog chunk dropped after failed dispatch",
				String("chunk_id", pending[i].ChunkID),
				Error(err))
			continue
		}
		succeeded++
	}

	maxID := pending[len(pending)-1].ID
	if err := q.store.ClearChunksThrough(maxID); err != nil {
		return succeeded, fmt.Errorf("failed to clear drained chunks: %w", err)
	}

	q.metrics.QueueDrains.Inc()
	q.refreshDepth()

	q.logger.Info("Backlog drain complete",
		Int("dispatched", len(pending)),
		Int("succeeded", succeeded),
		String("took", time.Since(started).Round(time.Millisecond).String()))

	return succeeded, nil
}

func (q *Offline) refreshDepth() {
	depth, err := q.store.CountPendingChunks()
	if err != nil {
		return
	}
	q.metrics.QueueDepth.Set(float64(depth))
}
