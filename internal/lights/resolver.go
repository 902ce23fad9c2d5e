package lights

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// BacklightDevice is a static descriptor of one backlight control
type BacklightDevice struct {
	Name              string
	BrightnessPath    string
	MaxBrightnessPath string
	DefaultMax        int
	MinVisible        int
}

// PathProber checks file permissions without opening the file
type PathProber interface {
	Writable(path string) bool
	Readable(path string) bool
}

// AccessProber probes with access(2)
type AccessProber struct{}

func (AccessProber) Writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

func (AccessProber) Readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// Resolver selects the current backlight device from an ordered candidate list.
// Earlier candidates are preferred.
type Resolver struct {
	prober     PathProber
	candidates []BacklightDevice

	mu      sync.RWMutex
	current *BacklightDevice
}

// NewResolver creates a resolver over candidates. A nil prober means AccessProber.
func NewResolver(prober PathProber, candidates []BacklightDevice) *Resolver {
	if prober == nil {
		prober = AccessProber{}
	}
	return &Resolver{
		prober:     prober,
		candidates: append([]BacklightDevice(nil), candidates...),
	}
}

// Resolve probes from the top of the list and replaces the current selection,
// even when a previously selected device is still valid.
func (r *Resolver) Resolve() (*BacklightDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.candidates {
		cand := &r.candidates[i]
		if !r.prober.Writable(cand.BrightnessPath) {
			continue
		}
		if !r.prober.Readable(cand.MaxBrightnessPath) {
			continue
		}

		dev := *cand
		r.current = &dev
		log.Info().Str("device", dev.Name).Str("path", dev.BrightnessPath).Msg("Selected backlight control")
		return &dev, nil
	}

	r.current = nil
	log.Error().Int("candidates", len(r.candidates)).Msg("Cannot find supported backlight controls")
	return nil, ErrNoSupportedDevice
}

// Current returns the device picked by the last Resolve, or nil
func (r *Resolver) Current() *BacklightDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	dev := *r.current
	return &dev
}
