// Package bootstrap assembles the service and manages its lifecycle
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"book_collector/internal/core"

	"golang.org/x/sync/errgroup"
)

// App holds the core dependencies assembled at startup
type App struct {
	Settings *Settings
	Logger   core.ILogger
}

// NewApp bootstraps settings and logging. An empty settingsPath runs on
// defaults; a named settings file that fails to load is a startup error.
// Overrides are applied before the pre-flight checks, for CLI flags.
func NewApp(settingsPath string, overrides ...func(*Settings)) (*App, error) {
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	for _, o := range overrides {
		o(settings)
	}
	if err := checkPreFlight(settings); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	logger, err := InitLogger(settings)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	return &App{
		Settings: settings,
		Logger:   logger,
	}, nil
}

// Runner is a component that runs until its context is cancelled
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts every runner and blocks until they all finish, a runner
// fails, or a termination signal arrives.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		a.Logger.Error("Application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("Application shut down gracefully")
	return nil
}
