package capture

import (
	"time"
)

// Classification is the Signal Monitor's verdict for one sample window.
// Samples ride along so the engine can buffer them while a speech segment
// is open; the monitor itself keeps no audio.
type Classification struct {
	At      time.Time
	Level   float64 // loudness in dBFS
	Loud    bool
	Samples []int16
}

// Chunk is one finalized, speech-bounded unit of encoded audio ready for
// transcription. Immutable after creation; ownership transfers to exactly
// one consumer.
type Chunk struct {
	ID        string
	Audio     []byte // WAV payload
	MIMEType  string
	Source    string // "tab" or "microphone"
	CreatedAt time.Time
}

// CommandKind enumerates the engine's external commands. The set is closed:
// the engine matches exhaustively and an unknown value is a programming
// error, not a silent no-op.
type CommandKind int

const (
	CommandPause CommandKind = iota
	CommandResume
	CommandStop
)

// String returns the wire name of the command
func (c CommandKind) String() string {
	switch c {
	case CommandPause:
		return "pauseCapture"
	case CommandResume:
		return "resumeCapture"
	case CommandStop:
		return "stopCapture"
	default:
		return "unknown"
	}
}
