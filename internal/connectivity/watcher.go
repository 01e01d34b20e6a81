package connectivity

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yurib/scribeline/pkg/logger"
)

// Probe reports whether the transcription backends look reachable right now
type Probe func(ctx context.Context) bool

// WatcherConfig contains connectivity polling settings
type WatcherConfig struct {
	Interval time.Duration // poll period, default 5s
	ProbeURL string        // endpoint to HEAD, default Gemini API host
}

// Watcher polls reachability on a fixed interval and exposes the latest
// verdict plus a signal on each offline to online transition. The signal
// channel is buffered so a slow consumer coalesces bursts instead of
// blocking the poll loop.
type Watcher struct {
	cfg      WatcherConfig
	probe    Probe
	logger   *logger.Logger
	online   atomic.Bool
	restored chan struct{}
}

// NewWatcher creates a connectivity watcher. A nil probe gets a default
// HTTP HEAD probe against cfg.ProbeURL.
func NewWatcher(cfg WatcherConfig, probe Probe, log *logger.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = "https://generativelanguage.googleapis.com"
	}

	w := &Watcher{
		cfg:      cfg,
		probe:    probe,
		logger:   log.Named("connectivity"),
		restored: make(chan struct{}, 1),
	}
	if w.probe == nil {
		w.probe = w.httpProbe
	}

	// Assume online until the first poll says otherwise, so a chunk
	// produced at startup goes straight to dispatch.
	w.online.Store(true)

	return w
}

// Online returns the most recent reachability verdict
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Restored signals each offline to online transition
func (w *Watcher) Restored() <-chan struct{} {
	return w.restored
}

// Run polls until the context is cancelled
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	now := w.probe(ctx)
	was := w.online.Swap(now)

	if was == now {
		return
	}

	if now {
		w.logger.Info("Connectivity restored")
		select {
		case w.restored <- struct{}{}:
		default:
		}
	} else {
		w.logger.Warn("Connectivity lost, chunks will be queued")
	}
}

func (w *Watcher) httpProbe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "HEAD", w.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}

	resp, err := probeClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	// Any HTTP response means the network path is up; the status code
	// is the backend's business, not ours.
	return true
}

var probeClient = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
	},
	Timeout: 5 * time.Second,
}
