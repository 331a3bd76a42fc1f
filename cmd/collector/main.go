package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"book_collector/internal/alert"
	"book_collector/internal/bootstrap"
	"book_collector/internal/collector"
	"book_collector/internal/config"
	"book_collector/internal/core"
	"book_collector/internal/feed"
	"book_collector/internal/infrastructure/health"
	"book_collector/internal/infrastructure/metrics"
	"book_collector/internal/persist"
	"book_collector/pkg/concurrency"
	"book_collector/pkg/logging"
	"book_collector/pkg/retry"
	"book_collector/pkg/telemetry"
)

var (
	settingsFile = flag.String("settings", "", "Path to the service settings file (YAML, optional)")
	configFile   = flag.String("config", "", "Override path to the watched runtime config (JSON)")
	dataDir      = flag.String("data", "", "Override snapshot output directory")
)

func main() {
	flag.Parse()

	// Env vars take precedence over flags for container deployments
	if env := os.Getenv("SETTINGS_FILE"); env != "" {
		*settingsFile = env
	}
	if env := os.Getenv("CONFIG_FILE"); env != "" {
		*configFile = env
	}
	if env := os.Getenv("DATA_DIR"); env != "" {
		*dataDir = env
	}

	app, err := bootstrap.NewApp(*settingsFile, func(s *bootstrap.Settings) {
		if *configFile != "" {
			s.Collector.ConfigPath = *configFile
		}
		if *dataDir != "" {
			s.Collector.DataDir = *dataDir
		}
	})
	if err != nil {
		logging.Fatal("Startup failed", "error", err)
	}

	logger := app.Logger
	settings := app.Settings

	tel, err := telemetry.Setup("book_collector")
	if err != nil {
		logger.Fatal("Telemetry setup failed", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	// The exchange is fixed for the process lifetime; the initial config
	// decides it and the watcher rejects later changes.
	initialCfg, err := config.LoadConfig(settings.Collector.ConfigPath)
	if err != nil {
		logger.Fatal("Invalid initial config", "path", settings.Collector.ConfigPath, "error", err)
	}
	exchangeFeed, err := feed.NewFeed(initialCfg.Exchange(), logger)
	if err != nil {
		logger.Fatal("Unsupported exchange", "exchange", initialCfg.Exchange(), "error", err)
	}
	logger.Info("Collecting order books",
		"exchange", exchangeFeed.Name(), "symbols", initialCfg.Symbols())

	healthMonitor := health.NewHealthManager(logger)

	var metricsServer *metrics.Server
	if settings.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(settings.Telemetry.MetricsPort, healthMonitor, logger)
		metricsServer.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Stop(stopCtx)
		}()
	}

	var notifier core.INotifier
	if settings.Alert.SlackWebhookURL != "" || settings.Alert.TelegramBotToken != "" {
		notifier = alert.NewFromSettings(settings.Alert, logger)
	}

	store := persist.NewStore(settings.Collector.DataDir, logger)
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "teardown",
		MaxWorkers: 8,
	}, logger)
	defer pool.Stop()

	opts := collector.Options{
		SnapshotInterval: time.Duration(settings.Collector.SnapshotIntervalMs) * time.Millisecond,
		ResyncBackoff: retry.Policy{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		MaxRetries:  settings.Collector.MaxRetries,
		RetryWindow: time.Duration(settings.Collector.RetryWindowSec) * time.Second,
	}
	orchestrator := collector.NewOrchestrator(exchangeFeed, store, opts, pool, healthMonitor, notifier, logger)

	watcher, err := config.NewWatcher(settings.Collector.ConfigPath,
		time.Duration(settings.Collector.DebounceMs)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("Config watcher setup failed", "error", err)
	}
	defer watcher.Close()

	service := &collectorService{watcher: watcher, orchestrator: orchestrator}
	if err := app.Run(service); err != nil {
		os.Exit(1)
	}
}

// collectorService ties the watcher and orchestrator into one Runner
type collectorService struct {
	watcher      *config.Watcher
	orchestrator *collector.Orchestrator
}

func (s *collectorService) Run(ctx context.Context) error {
	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	return s.orchestrator.Run(ctx, s.watcher.Events())
}
