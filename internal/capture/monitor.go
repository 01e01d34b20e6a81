package capture

import (
	"context"
	"time"

	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

// Import logger functions
var (
	String  = logger.String
	Int     = logger.Int
	Float64 = logger.Float64
	Error   = logger.Error
)

// MonitorConfig contains configuration for the signal monitor
type MonitorConfig struct {
	Period      time.Duration // sampling period, default 200ms
	ThresholdDB float64       // loudness threshold in dBFS, default -50
}

// Monitor samples a capture source on a fixed period, computes RMS loudness
// in decibels and classifies each window as speech or silence. It pushes
// classifications to the segmentation engine and buffers nothing itself.
type Monitor struct {
	source  audio.CaptureSource
	cfg     MonitorConfig
	out     chan Classification
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewMonitor creates a new signal monitor reading from the given source
func NewMonitor(source audio.CaptureSource, cfg MonitorConfig, m *metrics.Metrics, log *logger.Logger) *Monitor {
	return &Monitor{
		source:  source,
		cfg:     cfg,
		out:     make(chan Classification, 16),
		metrics: m,
		logger:  log.Named("monitor"),
	}
}

// Out returns the classification stream consumed by the engine
func (m *Monitor) Out() <-chan Classification {
	return m.out
}

// Run samples the source until the context is canceled or the source fails.
// The returned error is the single error event propagated upward; a nil
// return means a clean shutdown. The output channel is closed on exit.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	m.logger.Info("Starting signal monitor",
		logger.Duration("period", m.cfg.Period),
		Float64("threshold_db", m.cfg.ThresholdDB))

	ticker := time.NewTicker(m.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Signal monitor stopped")
			return nil
		case now := <-ticker.C:
			samples, err := m.source.ReadWindow(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("Failed to read sample window", Error(err))
				return err
			}

			level := audio.Decibels(audio.RMS(samples))
			c := Classification{
				At:      now,
				Level:   level,
				Loud:    level > m.cfg.ThresholdDB,
				Samples: samples,
			}

			m.metrics.WindowsClassified.Inc()
			if c.Loud {
				m.metrics.SpeechWindows.Inc()
			}

			select {
			case m.out <- c:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
