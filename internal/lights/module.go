// Package lights maps abstract light requests onto Linux sysfs brightness files.
//
// A Module is built from configuration and hands out one Device per opened
// light. The backlight is auto-detected from an ordered candidate table; the
// button light can run an auto-off watchdog fed by input device activity.
package lights

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/eventbus"
)

// State is a light request: a packed 0xRRGGBB color or on/off flag
type State struct {
	Color uint32
}

// SinkOpener opens the brightness file of a channel
type SinkOpener func(path string) (Sink, error)

func openSysfs(path string) (Sink, error) {
	return OpenSysfsSink(path)
}

// Options holds the collaborators of a Module. Zero values select the real
// sysfs, access(2) and evdev implementations.
type Options struct {
	Prober    PathProber
	OpenSink  SinkOpener
	OpenInput InputOpener
	Bus       *eventbus.Bus
}

// Module owns the configuration and every open Device
type Module struct {
	cfg      *config.Config
	resolver *Resolver
	opts     Options

	mu      sync.Mutex
	devices map[*Device]struct{}
}

// NewModule creates a module over cfg
func NewModule(cfg *config.Config, opts Options) *Module {
	if opts.OpenSink == nil {
		opts.OpenSink = openSysfs
	}
	if opts.OpenInput == nil {
		opts.OpenInput = OpenEvdev
	}

	candidates := make([]BacklightDevice, 0, len(cfg.Backlight.Candidates))
	for _, c := range cfg.Backlight.Candidates {
		candidates = append(candidates, BacklightDevice{
			Name:              c.Name,
			BrightnessPath:    c.BrightnessPath,
			MaxBrightnessPath: c.MaxBrightnessPath,
			DefaultMax:        c.DefaultMax,
			MinVisible:        c.MinVisible,
		})
	}

	return &Module{
		cfg:      cfg,
		resolver: NewResolver(opts.Prober, candidates),
		opts:     opts,
		devices:  make(map[*Device]struct{}),
	}
}

// Open sets up the channel for a light identifier
func (m *Module) Open(id string) (*Device, error) {
	var (
		d   *Device
		err error
	)
	switch id {
	case config.LightBacklight:
		d, err = m.openBacklight()
	case config.LightKeyboard, config.LightButtons, config.LightBattery, config.LightNotifications, config.LightAttention:
		d, err = m.openLED(id)
	default:
		return nil, fmt.Errorf("%w: unknown light %q", ErrInvalidArgument, id)
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.devices[d] = struct{}{}
	m.mu.Unlock()

	log.Debug().Str("light", id).Msg("Light opened")
	return d, nil
}

// openBacklight re-runs resolution. Without a device the handle still opens
// but every SetLight fails with ErrDeviceUnavailable.
func (m *Module) openBacklight() (*Device, error) {
	bl := m.cfg.Backlight
	d := &Device{id: config.LightBacklight, module: m}

	dev, err := m.resolver.Resolve()
	if err != nil {
		return d, nil
	}

	mapper, err := NewMapper(bl.Input, bl.Policy, bl.Curve, dev.MinVisible)
	if err != nil {
		return nil, err
	}
	sink, err := m.opts.OpenSink(dev.BrightnessPath)
	if err != nil {
		mapper.Close()
		return nil, err
	}

	d.backlight = dev
	d.mapper = mapper
	d.sink = sink
	d.maxPath = dev.MaxBrightnessPath
	d.defaultMax = dev.DefaultMax

	m.opts.Bus.Publish(eventbus.NewEvent(eventbus.EventTypeBacklightSelected, map[string]interface{}{
		"device": dev.Name,
		"path":   dev.BrightnessPath,
	}))
	return d, nil
}

func (m *Module) openLED(id string) (*Device, error) {
	lc, ok := m.cfg.Lights[id]
	if !ok {
		return nil, fmt.Errorf("%w: light %q is not configured", ErrInvalidArgument, id)
	}

	mapper, err := NewMapper(lc.Input, lc.Policy, lc.Curve, 0)
	if err != nil {
		return nil, err
	}
	sink, err := m.opts.OpenSink(lc.BrightnessPath)
	if err != nil {
		mapper.Close()
		return nil, err
	}

	d := &Device{
		id:         id,
		module:     m,
		mapper:     mapper,
		sink:       sink,
		defaultMax: lc.DefaultMax,
		max:        ReadMaxBrightness(lc.MaxBrightnessPath, lc.DefaultMax),
	}

	if id == config.LightButtons && m.cfg.Watchdog.Enabled {
		if err := d.startWatchdog(m.cfg.Watchdog, m.opts.OpenInput, m.opts.Bus); err != nil {
			d.release()
			return nil, err
		}
	}
	return d, nil
}

func (m *Module) forget(d *Device) {
	m.mu.Lock()
	delete(m.devices, d)
	m.mu.Unlock()
}

// Close closes every device still open
func (m *Module) Close() error {
	m.mu.Lock()
	devices := make([]*Device, 0, len(m.devices))
	for d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.Unlock()

	var firstErr error
	for _, d := range devices {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Device is an opened light
type Device struct {
	id     string
	module *Module

	mu         sync.Mutex
	closed     bool
	sink       Sink
	mapper     *Mapper
	backlight  *BacklightDevice
	maxPath    string
	defaultMax int
	max        int

	watchdog *Watchdog
	cancel   context.CancelFunc
	workers  sync.WaitGroup
}

// ID returns the light identifier
func (d *Device) ID() string {
	return d.id
}

// Backlight returns the resolved backlight descriptor, nil for LEDs or when none was found
func (d *Device) Backlight() *BacklightDevice {
	return d.backlight
}

func (d *Device) startWatchdog(cfg config.WatchdogConfig, open InputOpener, bus *eventbus.Bus) error {
	fullOn, err := d.mapper.Map(colorMask, d.max)
	if err != nil {
		fullOn = d.max
	}
	d.watchdog = NewWatchdog(d.id, d.sink, fullOn, cfg.IdleTimeout.Duration(), bus)

	watches := make([]InputWatch, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		watches = append(watches, InputWatch{Path: in.Path, KeyCodes: in.KeyCodes, AbsMotion: in.AbsMotion})
	}
	monitor, err := NewInputMonitor(watches, open, func() {
		d.watchdog.Poke()
		bus.Publish(eventbus.NewEvent(eventbus.EventTypeInputActivity, map[string]interface{}{
			"light": d.id,
		}))
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.workers.Add(2)
	go func() {
		defer d.workers.Done()
		d.watchdog.Run(ctx)
	}()
	go func() {
		defer d.workers.Done()
		monitor.Run(ctx)
	}()

	log.Info().
		Str("light", d.id).
		Int("inputs", len(watches)).
		Dur("idle_timeout", cfg.IdleTimeout.Duration()).
		Msg("Auto-off watchdog running")
	return nil
}

// SetLight applies s. Watchdog-driven lights hand the value to the worker;
// all others write synchronously before returning.
func (d *Device) SetLight(s State) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.id == config.LightBacklight && d.backlight == nil {
		return ErrDeviceUnavailable
	}

	max := d.max
	if d.backlight != nil {
		max = ReadMaxBrightness(d.maxPath, d.defaultMax)
	}

	value, err := d.mapper.Map(s.Color, max)
	if err != nil {
		log.Error().Err(err).Str("light", d.id).Int("max", max).Msg("Failed to map brightness")
		d.publishFailure(s, err)
		return err
	}

	if d.watchdog != nil {
		d.watchdog.Request(value)
		return nil
	}

	if err := d.sink.Write(value); err != nil {
		log.Error().Err(err).Str("light", d.id).Int("value", value).Msg("Failed to write brightness")
		d.publishFailure(s, err)
		return err
	}

	log.Debug().Str("light", d.id).Uint32("color", s.Color).Int("value", value).Msg("Brightness written")
	d.module.opts.Bus.Publish(eventbus.NewEvent(eventbus.EventTypeLightSet, map[string]interface{}{
		"light": d.id,
		"color": s.Color,
		"value": value,
		"max":   max,
	}))
	return nil
}

func (d *Device) publishFailure(s State, err error) {
	d.module.opts.Bus.Publish(eventbus.NewEvent(eventbus.EventTypeLightFailed, map[string]interface{}{
		"light": d.id,
		"color": s.Color,
		"error": err.Error(),
	}))
}

// Close stops the watchdog workers, waits for them, then closes the brightness file
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.module.forget(d)
	return d.release()
}

func (d *Device) release() error {
	if d.cancel != nil {
		d.cancel()
		d.workers.Wait()
	}
	if d.mapper != nil {
		d.mapper.Close()
	}
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			return err
		}
	}
	return nil
}
