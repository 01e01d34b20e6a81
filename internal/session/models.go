package session

import (
	"errors"
	"time"
)

// State is the session lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Audio source kinds
const (
	SourceTab        = "tab"
	SourceMicrophone = "microphone"
)

// Lifecycle errors returned by the orchestrator's control surface
var (
	ErrAlreadyRunning = errors.New("a session is already running")
	ErrNoSession      = errors.New("no active session")
	ErrNotRecording   = errors.New("session is not recording")
	ErrNotPaused      = errors.New("session is not paused")
)

// StartConfig is the client-supplied configuration for one session
type StartConfig struct {
	Credential string `json:"credential"`
	Source     string `json:"source"`
	StreamURL  string `json:"stream_url,omitempty"`
}

// Snapshot is a point-in-time view of the session for the API and the
// status broadcast
type Snapshot struct {
	State          State      `json:"state"`
	Source         string     `json:"source,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	SecondsElapsed int        `json:"seconds_elapsed"`
	QueueDepth     int        `json:"queue_depth"`
	Online         bool       `json:"online"`
}
