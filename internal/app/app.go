package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/ledger"
	"github.com/dokzlo13/lightshal/internal/lights"
)

// ErrHistoryDisabled is returned by History when no database is configured
var ErrHistoryDisabled = errors.New("light history is disabled (database.path is empty)")

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, lights.Options{})
}

// NewWithOptions is New with explicit lights collaborators (sysfs prober, sinks, input devices).
func NewWithOptions(cfg *config.Config, opts lights.Options) (*App, error) {
	services, err := NewServices(cfg, opts)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start initializes and starts all services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		return err
	}

	log.Info().Msg("lightshal started")
	return nil
}

// Apply sets one light outside of the startup table
func (a *App) Apply(id string, color uint32) error {
	return a.services.Lights.Apply(id, color)
}

// History returns the newest ledger entries for a light id, or for an event
// type such as "watchdog_off" when key is not a light id.
func (a *App) History(key string, limit int) ([]*ledger.Entry, error) {
	l := a.services.Ledger
	if l == nil {
		return nil, ErrHistoryDisabled
	}
	if config.IsLightID(key) {
		return l.GetByLight(key, limit)
	}
	return l.GetByType(ledger.EventType(key), limit)
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
