package lights

import (
	"context"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// EventReader is the part of an evdev input device the monitor uses
type EventReader interface {
	ReadOne() (*evdev.InputEvent, error)
	Close() error
}

// InputOpener opens an input device by path
type InputOpener func(path string) (EventReader, error)

// nonBlocker is implemented by *evdev.InputDevice. evdev.Open leaves the fd in
// blocking mode, where Close does not interrupt a pending ReadOne.
type nonBlocker interface {
	NonBlock() error
}

// makeInterruptible switches r to non-blocking mode when it supports it.
// Nothing may call Fd() on the underlying file afterwards.
func makeInterruptible(path string, r EventReader) error {
	nb, ok := r.(nonBlocker)
	if !ok {
		return nil
	}
	if err := nb.NonBlock(); err != nil {
		return ioError("nonblock", path, err)
	}
	return nil
}

// OpenEvdev opens a /dev/input/eventN device
func OpenEvdev(path string) (EventReader, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, ioError("open", path, err)
	}
	return dev, nil
}

// InputWatch names an input device and the events on it that count as activity
type InputWatch struct {
	Path      string
	KeyCodes  []uint16 // empty = any key
	AbsMotion bool
}

// Matches reports whether ev counts as activity
func (w InputWatch) Matches(ev *evdev.InputEvent) bool {
	switch ev.Type {
	case evdev.EV_KEY:
		if len(w.KeyCodes) == 0 {
			return true
		}
		for _, code := range w.KeyCodes {
			if evdev.EvCode(code) == ev.Code {
				return true
			}
		}
	case evdev.EV_ABS:
		return w.AbsMotion
	}
	return false
}

// InputMonitor waits on a set of input devices and reports activity
type InputMonitor struct {
	watches    []InputWatch
	readers    []EventReader
	onActivity func()

	logLimit  rate.Sometimes
	closeOnce sync.Once
}

// NewInputMonitor opens every watched device and makes it interruptible by
// Close. If any step fails, the devices already opened are closed and the
// error is returned.
func NewInputMonitor(watches []InputWatch, open InputOpener, onActivity func()) (*InputMonitor, error) {
	if open == nil {
		open = OpenEvdev
	}
	m := &InputMonitor{
		watches:    watches,
		onActivity: onActivity,
		logLimit:   rate.Sometimes{Interval: time.Second},
	}
	for _, w := range watches {
		r, err := open(w.Path)
		if err != nil {
			m.closeReaders()
			return nil, err
		}
		m.readers = append(m.readers, r)
		if err := makeInterruptible(w.Path, r); err != nil {
			m.closeReaders()
			return nil, err
		}
	}
	return m, nil
}

// Run blocks until ctx is cancelled or every device has failed.
// Device readers are closed on return.
func (m *InputMonitor) Run(ctx context.Context) {
	defer m.closeReaders()

	if len(m.readers) == 0 {
		<-ctx.Done()
		return
	}

	hits := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for i, r := range m.readers {
		wg.Add(1)
		go func(w InputWatch, r EventReader) {
			defer wg.Done()
			m.read(ctx, w, r, hits)
		}(m.watches[i], r)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	for {
		select {
		case <-ctx.Done():
			// Closing the devices unblocks pending reads
			m.closeReaders()
			<-allDone
			return
		case <-allDone:
			log.Warn().Msg("All input devices failed, activity will no longer wake the light")
			<-ctx.Done()
			return
		case <-hits:
			m.logLimit.Do(func() {
				log.Debug().Msg("Input activity")
			})
			m.onActivity()
		}
	}
}

func (m *InputMonitor) read(ctx context.Context, w InputWatch, r EventReader, hits chan<- struct{}) {
	for {
		ev, err := r.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("device", w.Path).Msg("Input device read failed, stopping reader")
			return
		}
		if !w.Matches(ev) {
			continue
		}
		select {
		case hits <- struct{}{}:
		default:
			// Already pending, activity coalesces
		}
	}
}

func (m *InputMonitor) closeReaders() {
	m.closeOnce.Do(func() {
		for _, r := range m.readers {
			if err := r.Close(); err != nil {
				log.Debug().Err(err).Msg("Failed to close input device")
			}
		}
	})
}
