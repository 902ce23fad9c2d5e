package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/eventbus"
	"github.com/dokzlo13/lightshal/internal/lights"
)

// LightsService owns the lights module and the devices the daemon keeps open.
type LightsService struct {
	cfg    *config.Config
	Module *lights.Module

	mu      sync.Mutex
	devices map[string]*lights.Device
}

// NewLightsService creates the module; no device is opened until Start or Apply.
func NewLightsService(cfg *config.Config, bus *eventbus.Bus, opts lights.Options) *LightsService {
	opts.Bus = bus
	return &LightsService{
		cfg:     cfg,
		Module:  lights.NewModule(cfg, opts),
		devices: make(map[string]*lights.Device),
	}
}

// Start opens the watchdog channel and applies the configured startup states.
func (s *LightsService) Start(ctx context.Context) error {
	if s.cfg.Watchdog.Enabled {
		if _, err := s.device(config.LightButtons); err != nil {
			return fmt.Errorf("failed to start button light watchdog: %w", err)
		}
	}

	// Stable order
	ids := make([]string, 0, len(s.cfg.Startup))
	for id := range s.cfg.Startup {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		color, err := ParseColor(s.cfg.Startup[id])
		if err != nil {
			return fmt.Errorf("startup.%s: %w", id, err)
		}
		if err := s.Apply(id, color); err != nil {
			// LEDs missing on this hardware are not fatal
			log.Warn().Err(err).Str("light", id).Msg("Failed to apply startup state")
		}
	}
	return nil
}

// Apply sets light id to color, opening the device on first use
func (s *LightsService) Apply(id string, color uint32) error {
	d, err := s.device(id)
	if err != nil {
		return err
	}
	if err := d.SetLight(lights.State{Color: color}); err != nil {
		return err
	}
	log.Info().Str("light", id).Str("color", fmt.Sprintf("%#08x", color)).Msg("Light state applied")
	return nil
}

func (s *LightsService) device(id string) (*lights.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.devices[id]; ok {
		return d, nil
	}
	d, err := s.Module.Open(id)
	if err != nil {
		return nil, err
	}
	s.devices[id] = d
	return d, nil
}

// Close closes every device, joining watchdog workers
func (s *LightsService) Close() error {
	s.mu.Lock()
	s.devices = make(map[string]*lights.Device)
	s.mu.Unlock()
	return s.Module.Close()
}

// ParseColor accepts "#RRGGBB", "0xAARRGGBB" or a decimal value
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "#"):
		v, err = strconv.ParseUint(s[1:], 16, 32)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseUint(s[2:], 16, 32)
	default:
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return uint32(v), nil
}
