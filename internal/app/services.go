package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/db"
	"github.com/dokzlo13/lightshal/internal/eventbus"
	"github.com/dokzlo13/lightshal/internal/ledger"
	"github.com/dokzlo13/lightshal/internal/lights"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure (DB and Ledger are nil when database.path is empty)
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// High-level services
	Lights   *LightsService
	Recorder *RecorderService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts lights.Options) (*Services, error) {
	s := &Services{cfg: cfg}

	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	} else {
		log.Info().Msg("No database path configured, light history is disabled")
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	if s.Ledger != nil {
		s.Recorder = NewRecorderService(cfg, s.Ledger, s.Bus)
	}

	s.Lights = NewLightsService(cfg, s.Bus, opts)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Recorder first so backlight_selected and startup writes are captured
	if s.Recorder != nil {
		s.Recorder.Start(ctx)
	}
	return s.Lights.Start(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	return s.Close()
}

// Close releases all resources. Devices close first so their last events
// reach the ledger before the bus drains.
func (s *Services) Close() error {
	var firstErr error
	if s.Lights != nil {
		if err := s.Lights.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close lights")
			firstErr = err
		}
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Recorder != nil {
		s.Recorder.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
