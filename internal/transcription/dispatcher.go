package transcription

import (
	"context"
	"time"

	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

// DispatcherConfig contains retry settings for the dispatcher
type DispatcherConfig struct {
	MaxAttempts    int           // attempts per provider, default 3
	InitialBackoff time.Duration // first retry delay, doubles each retry, default 1s
}

// Dispatcher turns one chunk into text through an ordered provider chain.
// Each provider gets bounded retries with exponential backoff; the first
// well-formed non-empty result wins and no further provider is tried. When
// every provider exhausts its retries, the caller receives one
// *ExhaustedError aggregating each provider's last failure.
//
// The dispatcher has no side effects beyond the network calls; persisting
// results is the caller's responsibility.
type Dispatcher struct {
	providers []Provider
	cfg       DispatcherConfig
	metrics   *metrics.Metrics
	logger    *logger.Logger

	// sleep is replaced in tests to observe backoff without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher over the given provider chain. Provider
// order is the fallback order.
func NewDispatcher(providers []Provider, cfg DispatcherConfig, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}

	return &Dispatcher{
		providers: providers,
		cfg:       cfg,
		metrics:   m,
		logger:    log.Named("dispatcher"),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch tries each provider in order until one returns a non-empty
// transcript. Transport failures and structurally invalid responses are
// treated alike: both consume retries and then advance the chain.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	attempts := make([]Attempt, 0, len(d.providers))

	for _, provider := range d.providers {
		var lastErr error
		backoff := d.cfg.InitialBackoff

		for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
			if attempt > 0 {
				d.metrics.DispatchRetries.Inc()
				if err := d.sleep(ctx, backoff); err != nil {
					return "", err
				}
				backoff *= 2
			}

			d.metrics.DispatchAttempts.Inc()

			text, err := provider.Transcribe(ctx, req)
			if err == nil {
				d.metrics.DispatchSuccesses.Inc()
				d.logger.Debug("Dispatch succeeded",
					String("provider", provider.Name()),
					Int("attempt", attempt+1))
				return text, nil
			}

			lastErr = err
			d.logger.Warn("Transcription attempt failed",
				String("provider", provider.Name()),
				Int("attempt", attempt+1),
				Int("max_attempts", d.cfg.MaxAttempts),
				Error(err))

			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}

		attempts = append(attempts, Attempt{Provider: provider.Name(), Err: lastErr})
	}

	d.metrics.DispatchFailures.Inc()
	return "", &ExhaustedError{Attempts: attempts}
}
