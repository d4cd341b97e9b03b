package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vipul43/jobsync-worker/internal/config"
	"github.com/vipul43/jobsync-worker/internal/database"
	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/repository"
	"github.com/vipul43/jobsync-worker/internal/resilience"
	"github.com/vipul43/jobsync-worker/internal/server"
	"github.com/vipul43/jobsync-worker/internal/service"
	"github.com/vipul43/jobsync-worker/internal/sheets"
	"github.com/vipul43/jobsync-worker/internal/upstream"
	"github.com/vipul43/jobsync-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Application error")
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	logging.Info().Msg("Database connected successfully")

	if err := database.RunMigrations(db); err != nil {
		return err
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db.DB)
	jobRepo := repository.NewJobRecordRepository(db.DB)
	historyRepo := repository.NewSyncHistoryRepository(db.DB)

	// One breaker per external dependency, shared by every call site.
	upstreamBreaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             "upstream",
		FailureThreshold: cfg.UpstreamBreakerThreshold,
		RecoveryTimeout:  cfg.UpstreamBreakerRecovery,
	})
	sheetsBreaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             "sheets",
		FailureThreshold: cfg.SheetsBreakerThreshold,
		RecoveryTimeout:  cfg.SheetsBreakerRecovery,
	})

	retryCfg := resilience.RetryConfig{
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		OverloadDelay: cfg.RetryOverloadDelay,
	}

	// Initialize clients
	invoker := resilience.NewInvoker(&http.Client{}, resilience.InvokerConfig{Timeout: cfg.UpstreamTimeout})
	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:  cfg.UpstreamBaseURL,
		PageSize: cfg.UpstreamPageSize,
	}, invoker)

	sheetsClient, err := sheets.NewClient(ctx, sheets.Config{
		CredentialsFile: cfg.SheetsCredentialsFile,
		Timeout:         cfg.SheetsTimeout,
	})
	if err != nil {
		return err
	}

	// Initialize services
	reconciler := service.NewBatchReconciler(upstreamClient, jobRepo, resilience.NewRetrier(retryCfg, upstreamBreaker), service.ReconcilerConfig{
		Horizon:     cfg.UpstreamHorizon,
		BatchSize:   cfg.BatchSize,
		RecordPause: cfg.RecordPause,
		BatchPause:  cfg.BatchPause,
	})
	publisher := service.NewSheetPublisher(sheetsClient, jobRepo, resilience.NewRetrier(retryCfg, sheetsBreaker), cfg.SheetsRange)
	recorder := service.NewHistoryRecorder(historyRepo)

	syncService := service.NewSyncService(accountRepo, reconciler, publisher, recorder, service.SyncConfig{
		LightRetention: service.NewRetentionPolicy("light", cfg.RetentionLightDays),
		DeepRetention:  service.NewRetentionPolicy("deep", cfg.RetentionDeepDays),
	})

	w := watcher.New(watcher.Config{
		PollInterval:    cfg.PollInterval,
		CleanupInterval: cfg.CleanupInterval,
	}, accountRepo, syncService)

	srv := server.New(server.Config{Addr: cfg.HTTPAddr}, syncService, historyRepo, jobRepo, upstreamBreaker, sheetsBreaker)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		errChan <- w.Start(ctx)
	}()
	go func() {
		errChan <- srv.Start()
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-sigChan:
		logging.Info().Msg("Shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	cancel()

	// Wait for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Server shutdown incomplete")
	}

	select {
	case <-shutdownCtx.Done():
		logging.Warn().Msg("Shutdown timeout exceeded")
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Msg("Watcher error")
		}
	}

	logging.Info().Msg("Application stopped")
	return runErr
}
