package lights

import (
	"context"
	"testing"
	"time"
)

const testIdle = 50 * time.Millisecond

func startWatchdog(t *testing.T, sink *recordingSink, fullOn int, idle time.Duration) *Watchdog {
	t.Helper()
	w := NewWatchdog("buttons", sink, fullOn, idle, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("watchdog did not stop")
		}
	})
	return w
}

func TestWatchdog_StartsOffWithoutActivity(t *testing.T) {
	sink := newRecordingSink()
	startWatchdog(t, sink, 255, testIdle)

	expectNoWrite(t, sink, 3*testIdle)
}

func TestWatchdog_ActivityThenIdle(t *testing.T) {
	sink := newRecordingSink()
	w := startWatchdog(t, sink, 255, testIdle)

	w.Poke()
	expectWrite(t, sink, 255, time.Second)
	expectWrite(t, sink, 0, time.Second)
	expectNoWrite(t, sink, 3*testIdle)
}

func TestWatchdog_RepeatedActivityWritesOnce(t *testing.T) {
	sink := newRecordingSink()
	w := startWatchdog(t, sink, 255, testIdle)

	w.Poke()
	w.Poke()
	expectWrite(t, sink, 255, time.Second)
	w.Poke()
	expectWrite(t, sink, 0, time.Second)
	expectNoWrite(t, sink, 3*testIdle)

	if got := sink.Values(); len(got) != 2 {
		t.Errorf("writes = %v, want exactly [255 0]", got)
	}
}

func TestWatchdog_ActivityExtendsOnPeriod(t *testing.T) {
	idle := 150 * time.Millisecond
	sink := newRecordingSink()
	w := startWatchdog(t, sink, 255, idle)

	w.Poke()
	expectWrite(t, sink, 255, time.Second)

	// Keep poking well inside the idle window
	stop := time.Now().Add(3 * idle)
	for time.Now().Before(stop) {
		w.Poke()
		time.Sleep(idle / 5)
	}
	if got := sink.Values(); len(got) != 1 {
		t.Fatalf("writes while active = %v, want [255]", got)
	}

	expectWrite(t, sink, 0, time.Second)
}

func TestWatchdog_Request(t *testing.T) {
	sink := newRecordingSink()
	w := startWatchdog(t, sink, 255, testIdle)

	w.Request(100)
	expectWrite(t, sink, 100, time.Second)
	expectWrite(t, sink, 0, time.Second)

	// Activity now restores the requested level, not the initial full-on
	w.Poke()
	expectWrite(t, sink, 100, time.Second)
	expectWrite(t, sink, 0, time.Second)
}

func TestWatchdog_RequestOffWhileOff(t *testing.T) {
	sink := newRecordingSink()
	w := startWatchdog(t, sink, 255, testIdle)

	w.Request(0)
	w.Poke()
	expectNoWrite(t, sink, 3*testIdle)
}

func TestWatchdog_RetriesFailedWrite(t *testing.T) {
	sink := newRecordingSink()
	sink.failN = 1
	w := startWatchdog(t, sink, 255, testIdle)

	w.Poke()
	expectNoWrite(t, sink, 2*testIdle)

	w.Poke()
	expectWrite(t, sink, 255, time.Second)
}

func TestWatchdog_StopDoesNotForceOff(t *testing.T) {
	sink := newRecordingSink()
	w := NewWatchdog("buttons", sink, 255, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	w.Poke()
	expectWrite(t, sink, 255, time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := sink.Values(); len(got) != 1 {
		t.Errorf("writes = %v, want [255]", got)
	}
}
