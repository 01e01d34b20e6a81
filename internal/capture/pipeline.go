package capture

import (
	"context"

	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

// Pipeline wires a capture source, signal monitor and segmentation engine
// into one unit owning the device for the session's lifetime. Device release
// happens in a single teardown routine on every exit path.
type Pipeline struct {
	source  audio.CaptureSource
	monitor *Monitor
	engine  *Engine
	errs    chan error
	done    chan struct{}
	logger  *logger.Logger
}

// NewPipeline creates a capture pipeline over an acquired source
func NewPipeline(source audio.CaptureSource, monCfg MonitorConfig, engCfg EngineConfig, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	monitor := NewMonitor(source, monCfg, m, log)
	engine := NewEngine(engCfg, monitor.Out(), m, log)

	return &Pipeline{
		source:  source,
		monitor: monitor,
		engine:  engine,
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		logger:  log.Named("pipeline"),
	}
}

// Run acquires the device, then drives the monitor and engine until the
// engine stops or the context is canceled. The capture device is released
// before Run returns.
func (p *Pipeline) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer close(p.done)
	defer p.teardown()
	defer cancel()

	if err := p.source.Acquire(runCtx); err != nil {
		p.logger.Error("Failed to acquire capture source", Error(err))
		p.errs <- err
		// Run the engine against a canceled context so its channels still
		// close and consumers unblock.
		cancel()
		p.engine.Run(runCtx)
		return
	}

	go func() {
		if err := p.monitor.Run(runCtx); err != nil {
			// Single error event; the orchestrator reacts by stopping the
			// session. Never blocks: capacity one, later errors are dropped.
			select {
			case p.errs <- err:
			default:
			}
		}
	}()

	p.engine.Run(runCtx)
}

// teardown releases the capture device. It is the only release point.
func (p *Pipeline) teardown() {
	if err := p.source.Close(); err != nil {
		p.logger.Error("Failed to release capture source", Error(err))
	}
}

// Command forwards an external command to the engine
func (p *Pipeline) Command(cmd CommandKind) {
	p.engine.Command(cmd)
}

// Chunks returns the finished chunk stream
func (p *Pipeline) Chunks() <-chan Chunk {
	return p.engine.Chunks()
}

// Errors returns capture error events (device loss, read failures)
func (p *Pipeline) Errors() <-chan error {
	return p.errs
}

// Done is closed once the pipeline has fully shut down and the device is
// released
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}
