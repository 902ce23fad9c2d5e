package middleware

import (
	"sync"
	"time"
)

// IntervalCollector flushes one interval after the first event of a batch,
// or as soon as maxEvents are pending when maxEvents > 0.
type IntervalCollector struct {
	// flushMu is held across onFlush so Close can wait for a running flush
	flushMu sync.Mutex

	mu        sync.Mutex
	events    []map[string]any
	interval  time.Duration
	maxEvents int
	timer     *time.Timer
	started   bool
	closed    bool
	onFlush   FlushFunc
}

// NewIntervalCollector creates a new IntervalCollector
func NewIntervalCollector(interval time.Duration, maxEvents int, onFlush FlushFunc) *IntervalCollector {
	return &IntervalCollector{
		interval:  interval,
		maxEvents: maxEvents,
		onFlush:   onFlush,
	}
}

// AddEvent adds an event and starts the interval timer if not already started
func (c *IntervalCollector) AddEvent(event map[string]any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.events = append(c.events, event)

	if c.maxEvents > 0 && len(c.events) >= c.maxEvents {
		c.mu.Unlock()
		c.Flush()
		return
	}
	if !c.started {
		c.timer = time.AfterFunc(c.interval, c.Flush)
		c.started = true
	}
	c.mu.Unlock()
}

// Flush sends accumulated events to the flush callback now
func (c *IntervalCollector) Flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	events := c.events
	c.events = nil
	if c.timer != nil {
		c.timer.Stop()
	}
	c.started = false
	c.mu.Unlock()

	if len(events) > 0 {
		c.onFlush(events)
	}
}

// Close stops the timer and flushes whatever is pending. It returns only
// after any flush already in progress has finished; no flush starts later
// with events.
func (c *IntervalCollector) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.Flush()
}
