package refundd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"refundkeeper/observability/logging"
	telemetry "refundkeeper/observability/otel"
	"refundkeeper/services/refundd/ledger"
	"refundkeeper/services/refundd/store"
	"refundkeeper/services/refundd/wallet"
)

// Main initialises and runs the refund daemon.
func Main() error {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "services/refundd/config.yaml", "path to refundd configuration (.yaml or .toml)")
	flag.StringVar(&envPath, "env-file", ".env", "optional dotenv file holding secrets referenced by *_env settings")
	flag.Parse()

	if err := LoadEnvFile(envPath); err != nil {
		return err
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("REFUNDD_ENV"))
	logOpts := []logging.Option{}
	if cfg.Logging.File != "" {
		logOpts = append(logOpts, logging.WithFile(logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}))
	}
	logger := logging.Setup("refundd", env, logOpts...)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("refundd", env, os.Getenv))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	addresses, err := store.New(db, nil)
	if err != nil {
		return err
	}
	var lock CronLock = NewMemoryLock(cfg.Job.LockTTL.Duration)
	if cfg.Job.LockBackend == lockBackendDatabase {
		lock, err = store.NewLock(db, uuid.NewString(), cfg.Job.LockTTL.Duration, nil)
		if err != nil {
			return fmt.Errorf("init cron lock: %w", err)
		}
	}

	walletClient, err := wallet.NewClient(wallet.ClientConfig{
		Endpoint: cfg.Wallet.Endpoint,
		WalletID: cfg.Wallet.WalletID,
		Timeout:  cfg.Wallet.Timeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("init wallet: %w", err)
	}
	ledgerClient, err := ledger.NewClient(ledger.ClientConfig{
		Endpoint:          cfg.Ledger.Endpoint,
		ProjectID:         cfg.Ledger.ProjectID,
		RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
		Burst:             cfg.Ledger.Burst,
		Timeout:           cfg.Ledger.Timeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	job, err := NewJob(JobConfig{
		Addresses:  addresses,
		Sessions:   addresses,
		Ledger:     ledgerClient,
		Wallet:     walletClient,
		Lock:       lock,
		Passphrase: cfg.Wallet.Passphrase,
	},
		WithMetrics(NewMetrics()),
		WithLogger(logger),
		WithRunRecorder(addresses),
		WithLockName(cfg.Job.LockName),
		WithPageSize(cfg.Job.PageSize),
		WithStaleAfter(cfg.Job.StaleAfter.Duration),
		WithThreshold(cfg.Job.Threshold),
	)
	if err != nil {
		return fmt.Errorf("init job: %w", err)
	}
	if cfg.PauseOnStart {
		job.Pause()
	}

	auth, err := NewAuthenticator(AuthConfig{
		BearerToken: cfg.Admin.BearerToken,
		JWTSecret:   cfg.Admin.JWTSecret,
		JWTIssuer:   cfg.Admin.JWTIssuer,
	}, logger)
	if err != nil {
		return fmt.Errorf("init admin auth: %w", err)
	}

	logger.Info("refundd configured",
		slog.String("listen", cfg.ListenAddress),
		slog.String("driver", cfg.Database.Driver),
		slog.String("lock_backend", cfg.Job.LockBackend),
		slog.String("wallet_id", cfg.Wallet.WalletID),
		logging.MaskField("passphrase", cfg.Wallet.Passphrase),
		logging.MaskField("project_id", cfg.Ledger.ProjectID),
		slog.String("threshold", cfg.Job.Threshold.String()),
		slog.Duration("stale_after", cfg.Job.StaleAfter.Duration),
		slog.Duration("interval", cfg.Job.Interval.Duration),
		slog.Bool("paused", cfg.PauseOnStart),
	)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      NewAdminServer(job, auth, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		NewScheduler(SchedulerConfig{Runner: job, Interval: cfg.Job.Interval.Duration, Logger: logger}).Start(stopCtx)
	}()
	// A scheduled run in flight finishes before the process exits.
	defer func() { <-schedulerDone }()

	errs := make(chan error, 1)
	go func() {
		logger.Info("refundd listening", "listen", cfg.ListenAddress, "tls", cfg.Admin.TLS.Enabled())
		if cfg.Admin.TLS.Enabled() {
			errs <- httpServer.ListenAndServeTLS(cfg.Admin.TLS.CertPath, cfg.Admin.TLS.KeyPath)
			return
		}
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
