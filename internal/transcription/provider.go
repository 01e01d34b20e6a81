package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// ErrEmptyResult indicates a structurally invalid provider response: the
// transcript field was missing or empty. Treated as a failed attempt that
// advances the fallback chain, same as a transport failure.
var ErrEmptyResult = errors.New("provider returned no transcript text")

// Request carries one encoded chunk to a provider
type Request struct {
	Audio      []byte // WAV payload
	MIMEType   string
	Credential string
}

// Provider is a single speech-to-text backend
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (string, error)
}

// RequestError is a transport-level failure. The HTTP detail is preserved
// verbatim for diagnostics.
type RequestError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, response: %s", e.StatusCode, e.Detail)
}

// Attempt records the outcome of one provider's final attempt. Ephemeral:
// used only to build the aggregated failure, never persisted.
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustedError aggregates every provider's last failure for one chunk
type ExhaustedError struct {
	Attempts []Attempt
}

// Error concatenates one message per provider, in provider order
func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "all transcription providers failed: " + strings.Join(parts, "; ")
}
