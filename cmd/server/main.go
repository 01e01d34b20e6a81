package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yurib/scribeline/internal/api"
	"github.com/yurib/scribeline/internal/audio"
	"github.com/yurib/scribeline/internal/capture"
	"github.com/yurib/scribeline/internal/config"
	"github.com/yurib/scribeline/internal/connectivity"
	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/internal/queue"
	"github.com/yurib/scribeline/internal/session"
	"github.com/yurib/scribeline/internal/storage/sqlite"
	"github.com/yurib/scribeline/internal/transcription"
	"github.com/yurib/scribeline/internal/websocket"
	"github.com/yurib/scribeline/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load optional .env before config so env-based overrides work
	_ = godotenv.Load()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Scribeline server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Create SQLite storage
	storage, err := sqlite.NewStorage(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer storage.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	// Create metrics registry
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create connectivity watcher
	watcher := connectivity.NewWatcher(connectivity.WatcherConfig{
		Interval: time.Duration(cfg.Connectivity.PollIntervalSec) * time.Second,
		ProbeURL: cfg.Connectivity.ProbeURL,
	}, nil, log)
	go watcher.Run(ctx)

	// Build the provider chain in configured order
	providers := make([]transcription.Provider, 0, len(cfg.Transcription.Providers))
	for _, p := range cfg.Transcription.Providers {
		switch p.Name {
		case "gemini":
			providers = append(providers, transcription.NewGeminiProvider(p.Model, cfg.Transcription.RequestTimeoutSec, log, p.BaseURL))
		case "openai":
			providers = append(providers, transcription.NewOpenAIProvider(p.Model, cfg.Transcription.RequestTimeoutSec, log, p.BaseURL))
		}
	}

	dispatcher := transcription.NewDispatcher(providers, transcription.DispatcherConfig{
		MaxAttempts:    cfg.Transcription.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Transcription.InitialBackoffMs) * time.Millisecond,
	}, m, log)

	// Create offline queue
	backlog := queue.NewOffline(storage, m, log)

	// Capture source factory: tab audio arrives as a stream URL, the
	// microphone comes straight off the local device
	windowSamples := cfg.Capture.SampleRate * cfg.Capture.SamplePeriodMs / 1000 * cfg.Capture.Channels
	sources := func(start session.StartConfig) (audio.CaptureSource, error) {
		srcCfg := audio.FFmpegSourceConfig{
			FFmpegPath:    cfg.Capture.FFmpegPath,
			SampleRate:    cfg.Capture.SampleRate,
			Channels:      cfg.Capture.Channels,
			WindowSamples: windowSamples,
		}
		switch start.Source {
		case session.SourceMicrophone:
			srcCfg.Input = cfg.Capture.MicrophoneDev
			srcCfg.InputFormat = cfg.Capture.CaptureFormat
		default:
			srcCfg.Input = start.StreamURL
		}
		return audio.NewFFmpegSource(srcCfg, log), nil
	}

	captureSettings := session.CaptureSettings{
		Monitor: capture.MonitorConfig{
			Period:      time.Duration(cfg.Capture.SamplePeriodMs) * time.Millisecond,
			ThresholdDB: cfg.Capture.ThresholdDB,
		},
		Engine: capture.EngineConfig{
			SamplePeriod: time.Duration(cfg.Capture.SamplePeriodMs) * time.Millisecond,
			Hangover:     time.Duration(cfg.Capture.HangoverMs) * time.Millisecond,
			SampleRate:   cfg.Capture.SampleRate,
			Channels:     cfg.Capture.Channels,
		},
	}

	// Create session orchestrator
	orchestrator, err := session.NewOrchestrator(storage, dispatcher, backlog, watcher, wsServer, sources, captureSettings, m, log)
	if err != nil {
		log.Error("Failed to create session orchestrator", logger.Error(err))
		os.Exit(1)
	}
	go orchestrator.Run(ctx)

	// Create API router
	handler := api.NewHandler(orchestrator, wsServer, log)
	router := api.NewRouter(handler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop any active session first so the engine flushes its partial chunk
	// and the capture device is released
	if err := orchestrator.Stop(); err != nil {
		log.Error("Error stopping session", logger.Error(err))
	}

	// Cancel the main context
	cancel()

	// Shutdown the HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
