package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int64  = logger.Int64
	Error  = logger.Error
)

// sessionSlot is the single well-known row holding the session record.
// Exactly one session may be recording or paused at a time, so one slot
// is all there is.
const sessionSlot = 1

// SessionRecord is the persisted session state. It survives coordinator
// restarts so the display can resume, but an in-flight capture cannot be
// resumed and must be restarted explicitly.
type SessionRecord struct {
	State          string     `json:"recordingState"`
	AudioSource    string     `json:"audioSource"`
	Credential     string     `json:"credential"`
	StartedAt      time.Time  `json:"startTime"`
	PausedAt       *time.Time `json:"pausedTime,omitempty"`
	SecondsElapsed int        `json:"secondsElapsed"`
}

// TranscriptRecord is one append-only transcript entry. Ordering is arrival
// order, not audio chronology.
type TranscriptRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"timestamp"`
	Content   string    `json:"text"`
	Source    string    `json:"source"`
}

// ChunkRecord is one pending chunk in the offline backlog
type ChunkRecord struct {
	ID        int64     `json:"id"`
	ChunkID   string    `json:"chunk_id"`
	Audio     []byte    `json:"-"`
	MIMEType  string    `json:"mime_type"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Storage handles persistence of session state, transcripts and the offline
// chunk backlog
type Storage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStorage creates a new SQLite storage at the given path
func NewStorage(path string, log *logger.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &Storage{
		db:     db,
		logger: log.Named("sqlite"),
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

// GetDB returns the underlying database handle
func (s *Storage) GetDB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// initDB initializes the database tables
func (s *Storage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY,
			state TEXT NOT NULL,
			audio_source TEXT NOT NULL,
			credential TEXT NOT NULL,
			started_at TIMESTAMP,
			paused_at TIMESTAMP,
			seconds_elapsed INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS offline_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id TEXT NOT NULL,
			audio BLOB NOT NULL,
			mime_type TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create offline_chunks table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts index: %w", err)
	}

	return nil
}

// SaveSession persists the session record into the single slot
func (s *Storage) SaveSession(record *SessionRecord) error {
	var pausedAt any
	if record.PausedAt != nil {
		pausedAt = record.PausedAt.Format(time.RFC3339)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO session
		(id, state, audio_source, credential, started_at, paused_at, seconds_elapsed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionSlot,
		record.State,
		record.AudioSource,
		record.Credential,
		record.StartedAt.Format(time.RFC3339),
		pausedAt,
		record.SecondsElapsed,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// LoadSession returns the persisted session record, or nil when none exists
func (s *Storage) LoadSession() (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT state, audio_source, credential, started_at, paused_at, seconds_elapsed
		FROM session WHERE id = ?`,
		sessionSlot,
	)

	var record SessionRecord
	var startedAt string
	var pausedAt sql.NullString

	if err := row.Scan(
		&record.State,
		&record.AudioSource,
		&record.Credential,
		&startedAt,
		&pausedAt,
		&record.SecondsElapsed,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at in session record: %w", err)
	}
	record.StartedAt = t

	if pausedAt.Valid {
		p, err := time.Parse(time.RFC3339, pausedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid paused_at in session record: %w", err)
		}
		record.PausedAt = &p
	}

	return &record, nil
}

// AppendTranscript appends one transcript entry and returns its ID
func (s *Storage) AppendTranscript(record *TranscriptRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO transcripts (created_at, content, source) VALUES (?, ?, ?)`,
		record.CreatedAt.Format(time.RFC3339),
		record.Content,
		record.Source,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Transcripts returns transcript entries in arrival order
func (s *Storage) Transcripts(limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, content, source
		FROM transcripts
		ORDER BY id ASC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var records []*TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		var createdAt string

		if err := rows.Scan(&record.ID, &createdAt, &record.Content, &record.Source); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at in transcript: %w", err)
		}
		record.CreatedAt = t

		records = append(records, &record)
	}

	return records, rows.Err()
}

// ResetTranscripts clears the transcript log (a new session starts empty)
func (s *Storage) ResetTranscripts() error {
	if _, err := s.db.Exec(`DELETE FROM transcripts`); err != nil {
		return fmt.Errorf("failed to reset transcripts: %w", err)
	}
	return nil
}

// EnqueueChunk appends a chunk to the offline backlog. Appends are
// monotonic; duplicate audio is accepted as-is.
func (s *Storage) EnqueueChunk(record *ChunkRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO offline_chunks (chunk_id, audio, mime_type, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.ChunkID,
		record.Audio,
		record.MIMEType,
		record.Source,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// PendingChunks returns the whole backlog in enqueue order
func (s *Storage) PendingChunks() ([]*ChunkRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, chunk_id, audio, mime_type, source, created_at
		FROM offline_chunks
		ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query offline chunks: %w", err)
	}
	defer rows.Close()

	var records []*ChunkRecord
	for rows.Next() {
		var record ChunkRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.ChunkID,
			&record.Audio,
			&record.MIMEType,
			&record.Source,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan offline chunk: %w", err)
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at in offline chunk: %w", err)
		}
		record.CreatedAt = t

		records = append(records, &record)
	}

	return records, rows.Err()
}

// ClearChunksThrough removes every backlog row up to and including maxID.
// Chunks enqueued after the drain snapshot keep their place.
func (s *Storage) ClearChunksThrough(maxID int64) error {
	if _, err := s.db.Exec(`DELETE FROM offline_chunks WHERE id <= ?`, maxID); err != nil {
		return fmt.Errorf("failed to clear offline chunks: %w", err)
	}
	return nil
}

// CountPendingChunks returns the current backlog depth
func (s *Storage) CountPendingChunks() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM offline_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count offline chunks: %w", err)
	}
	return count, nil
}
