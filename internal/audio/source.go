package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// ErrPermissionDenied is returned when the capture device refuses access.
// The session cannot continue until access is re-granted.
var ErrPermissionDenied = errors.New("capture device access denied")

// ErrDeviceLost is returned when the capture source disappears mid-session
// (stream closed, device revoked).
var ErrDeviceLost = errors.New("capture device lost")

// CaptureSource is a live audio source delivering fixed-size windows of
// 16-bit PCM. It is a scoped resource: Acquire claims the device, Close
// releases it on every exit path.
type CaptureSource interface {
	Acquire(ctx context.Context) error
	ReadWindow(ctx context.Context) ([]int16, error)
	SampleRate() int
	Channels() int
	Close() error
}

// FFmpegSourceConfig contains configuration for an ffmpeg-backed capture source
type FFmpegSourceConfig struct {
	FFmpegPath    string
	Input         string // stream URL or device identifier
	InputFormat   string // ffmpeg -f demuxer for device capture ("alsa", "avfoundation"); empty for URLs
	SampleRate    int
	Channels      int
	WindowSamples int // samples per channel delivered by each ReadWindow
}

// FFmpegSource decodes a network stream or an OS capture device into raw
// s16le PCM through an ffmpeg child process.
type FFmpegSource struct {
	cfg    FFmpegSourceConfig
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *logger.Logger

	mu       sync.Mutex
	acquired bool
	closed   bool
}

// NewFFmpegSource creates a new ffmpeg capture source
func NewFFmpegSource(cfg FFmpegSourceConfig, log *logger.Logger) *FFmpegSource {
	return &FFmpegSource{
		cfg:    cfg,
		logger: log.Named("ffmpeg-source").With(String("input", cfg.Input)),
	}
}

// Acquire starts the ffmpeg process. Device access is re-checked on every
// call: a device input that fails to open is reported as ErrPermissionDenied.
func (s *FFmpegSource) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired {
		return nil
	}
	if s.closed {
		return fmt.Errorf("capture source already closed")
	}

	args := []string{
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
	}
	if s.cfg.InputFormat != "" {
		args = append(args, "-f", s.cfg.InputFormat)
	}
	args = append(args,
		"-i", s.cfg.Input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", s.cfg.Channels),
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-flush_packets", "1",
		"pipe:1",
	)

	s.logger.Info("Acquiring capture source",
		String("path", s.cfg.FFmpegPath),
		Int("sample_rate", s.cfg.SampleRate),
		Int("channels", s.cfg.Channels))

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if s.cfg.InputFormat != "" {
			// Device capture refused at process start means the OS denied
			// access to the device.
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.acquired = true
	return nil
}

// ReadWindow reads one full window of interleaved samples. A short read or
// EOF means the source disappeared and is reported as ErrDeviceLost.
func (s *FFmpegSource) ReadWindow(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	stdout := s.stdout
	acquired := s.acquired
	s.mu.Unlock()

	if !acquired {
		return nil, fmt.Errorf("capture source not acquired")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := make([]byte, s.cfg.WindowSamples*s.cfg.Channels*2)
	if _, err := io.ReadFull(stdout, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrDeviceLost
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

// SampleRate returns the PCM sample rate of the source
func (s *FFmpegSource) SampleRate() int {
	return s.cfg.SampleRate
}

// Channels returns the channel count of the source
func (s *FFmpegSource) Channels() int {
	return s.cfg.Channels
}

// Close releases the capture device. Safe to call multiple times and from
// any exit path.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cmd != nil && s.cmd.Process != nil {
		s.logger.Info("Releasing capture source")
		// Exit status is irrelevant during teardown; ffmpeg may already be gone.
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.acquired = false
	return nil
}
