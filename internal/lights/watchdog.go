package lights

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/eventbus"
)

const brightnessOff = 0

// Watchdog drives one light that turns itself off after a period without activity.
//
// requested and pending are shared with the callers of Request and Poke and are
// only touched under mu. lastWritten belongs to the worker goroutine.
type Watchdog struct {
	light string
	sink  Sink
	idle  time.Duration
	bus   *eventbus.Bus

	mu        sync.Mutex
	requested int
	pending   bool

	// One-slot signal channel, the worker's condition variable
	wake chan struct{}

	lastWritten int
}

// NewWatchdog creates a watchdog whose light starts OFF. fullOn is the
// brightness that input activity restores until Request says otherwise.
func NewWatchdog(light string, sink Sink, fullOn int, idle time.Duration, bus *eventbus.Bus) *Watchdog {
	return &Watchdog{
		light:       light,
		sink:        sink,
		idle:        idle,
		bus:         bus,
		requested:   fullOn,
		wake:        make(chan struct{}, 1),
		lastWritten: brightnessOff,
	}
}

// Request sets the brightness the light shows while active and applies it now
func (w *Watchdog) Request(value int) {
	w.mu.Lock()
	w.requested = value
	w.pending = true
	w.mu.Unlock()
	w.signal()
}

// Poke reports input activity: the light comes on and the idle timer restarts
func (w *Watchdog) Poke() {
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
	w.signal()
}

func (w *Watchdog) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
		// Already signalled
	}
}

// Run is the brightness worker. It returns when ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	log.Debug().Str("light", w.light).Dur("idle_timeout", w.idle).Msg("Watchdog started")
	defer log.Debug().Str("light", w.light).Msg("Watchdog stopped")

	timedOut := false
	for {
		w.mu.Lock()
		pending := w.pending
		w.pending = false
		requested := w.requested
		w.mu.Unlock()

		switch {
		case pending:
			if requested != w.lastWritten {
				w.write(requested)
			}
		case timedOut:
			if w.lastWritten != brightnessOff {
				w.write(brightnessOff)
			}
		}
		timedOut = false

		if w.lastWritten == brightnessOff {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			continue
		}

		timer := time.NewTimer(w.idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.wake:
			timer.Stop()
		case <-timer.C:
			timedOut = true
		}
	}
}

// write applies value; on failure lastWritten is kept so the next pass retries
func (w *Watchdog) write(value int) {
	if err := w.sink.Write(value); err != nil {
		log.Error().Err(err).Str("light", w.light).Int("value", value).Msg("Watchdog failed to write brightness")
		w.bus.Publish(eventbus.NewEvent(eventbus.EventTypeLightFailed, map[string]interface{}{
			"light": w.light,
			"value": value,
			"error": err.Error(),
		}))
		return
	}
	w.lastWritten = value

	eventType := eventbus.EventTypeWatchdogOn
	if value == brightnessOff {
		eventType = eventbus.EventTypeWatchdogOff
	}
	log.Debug().Str("light", w.light).Int("value", value).Str("transition", string(eventType)).Msg("Watchdog wrote brightness")
	w.bus.Publish(eventbus.NewEvent(eventType, map[string]interface{}{
		"light": w.light,
		"value": value,
	}))
}
