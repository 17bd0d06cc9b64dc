package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/api"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/assembler"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/cleanup"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/queue"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/tasks"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/webhook"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/health"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/breaker"
	_ "github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics" // register Prometheus metrics
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/sqlite"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/media"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/provider"
)

// providerBreaker names the circuit guarding transcription calls.
const providerBreaker = "provider"

// Daemon is the core bridge runtime. It wires together all services.
type Daemon struct {
	Config     Config
	DB         *sqlite.DB
	Breakers   *breaker.Registry
	Tasks      *tasks.Service
	Assembler  *assembler.Assembler
	Correlator *webhook.Correlator
	Queue      *queue.Processor
	Cleanup    *cleanup.Service
	Health     *health.Checker
	Server     *api.Server
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	home := bridgeHome()
	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         parseDuration(cfg.Breaker.Cooldown, 30*time.Second),
	})
	providerCircuit := breakers.Register(providerBreaker)

	// Provider client. Without an API key the mock transcriber keeps the
	// whole pipeline runnable for local development.
	var transcriber domain.Transcriber
	var splitter media.Splitter
	if cfg.Provider.APIKey != "" {
		transcriber = provider.NewClient(provider.Config{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			ModelID: cfg.Provider.ModelID,
			Timeout: parseDuration(cfg.Provider.Timeout, 120*time.Second),
			Webhook: cfg.Provider.Webhook,
		})
		splitter = media.NewFFmpegSplitter()
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: no API key configured, using mock transcriber (no real transcription)\n")
		fmt.Fprintf(os.Stderr, "  Set ELEVENLABS_API_KEY or provider.api_key in config.toml.\n")
		transcriber = provider.NewMock()
		splitter = media.StubSplitter{}
	}

	taskSvc := tasks.New(db, splitter, tasks.Config{
		SegmentLength: cfg.Storage.SegmentLength,
		ChunkDir:      cfg.Storage.ChunkDir,
		BitrateKbps:   cfg.Storage.BitrateKbps,
	})

	notifier := webhook.NewNotifier(parseDuration(cfg.Notify.Timeout, 15*time.Second))
	asm := assembler.New(db, notifier, assembler.Config{
		NotifyOnFailure: cfg.Notify.NotifyOnFailure,
	})
	correlator := webhook.NewCorrelator(db, asm)

	processor := queue.New(db, transcriber, providerCircuit, asm, queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		StaleWindow:   parseDuration(cfg.Queue.StaleWindow, 60*time.Second),
		DispatchDelay: parseDuration(cfg.Queue.DispatchDelay, 2*time.Second),
		RetryBudget:   cfg.Queue.RetryBudget,
		PollInterval:  parseDuration(cfg.Queue.PollInterval, 10*time.Second),
	})

	cleaner := cleanup.New(db, cleanup.Config{
		Retention:     parseDuration(cfg.Cleanup.Retention, 24*time.Hour),
		AbandonWindow: parseDuration(cfg.Cleanup.AbandonWindow, 72*time.Hour),
		DeleteRecords: cfg.Cleanup.DeleteRecords,
		Interval:      parseDuration(cfg.Cleanup.Interval, time.Hour),
	})

	checker := health.NewChecker(db, home, breakers, providerBreaker)

	srv := api.NewServer(taskSvc, correlator, breakers, cfg.Storage.UploadDir)
	srv.SetHealthChecker(checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ChunkDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Base(dir), err)
		}
	}

	return &Daemon{
		Config:     cfg,
		DB:         db,
		Breakers:   breakers,
		Tasks:      taskSvc,
		Assembler:  asm,
		Correlator: correlator,
		Queue:      processor,
		Cleanup:    cleaner,
		Health:     checker,
		Server:     srv,
	}, nil
}

// Serve starts the HTTP server and background loops, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Queue.Run(ctx)
	go d.Cleanup.Run(ctx)
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  5 * time.Minute, // long for large uploads
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("bridge serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
