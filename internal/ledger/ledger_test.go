package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/lightshal/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_AppendAndQuery(t *testing.T) {
	l := openLedger(t)

	if err := l.AppendWithSource(EventLightSet, "ev-1", "bus", "keyboard", map[string]any{"value": 255}); err != nil {
		t.Fatalf("AppendWithSource() error = %v", err)
	}
	if err := l.AppendWithSource(EventWatchdogOff, "ev-2", "bus", "buttons", nil); err != nil {
		t.Fatalf("AppendWithSource() error = %v", err)
	}

	entries, err := l.GetByType(EventLightSet, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetByType() returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Light != "keyboard" || e.Source != "bus" || e.IdempotencyKey != "ev-1" {
		t.Errorf("entry = %+v", e)
	}
	// JSON numbers come back as float64
	if v, _ := e.Payload["value"].(float64); v != 255 {
		t.Errorf("payload value = %v, want 255", e.Payload["value"])
	}

	entries, err = l.GetByLight("buttons", 10)
	if err != nil {
		t.Fatalf("GetByLight() error = %v", err)
	}
	if len(entries) != 1 || entries[0].EventType != EventWatchdogOff || entries[0].Payload != nil {
		t.Errorf("GetByLight() = %+v", entries)
	}
}

func TestLedger_IdempotencyKey(t *testing.T) {
	l := openLedger(t)

	for i := 0; i < 3; i++ {
		if err := l.AppendWithSource(EventLightSet, "ev-1", "bus", "keyboard", map[string]any{"try": i}); err != nil {
			t.Fatalf("append #%d error = %v", i, err)
		}
	}

	entries, err := l.GetByType(EventLightSet, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries for a repeated key, want 1", len(entries))
	}
	// First writer wins
	if try, _ := entries[0].Payload["try"].(float64); try != 0 {
		t.Errorf("kept payload try = %v, want 0", entries[0].Payload["try"])
	}

	// Empty keys are never deduplicated
	for i := 0; i < 2; i++ {
		if err := l.AppendWithSource(EventInputActivity, "", "input", "buttons", map[string]any{"count": 1}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err = l.GetByType(EventInputActivity, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d keyless entries, want 2", len(entries))
	}
}

func TestLedger_LimitAndOrder(t *testing.T) {
	l := openLedger(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := l.AppendWithSource(EventWatchdogOn, key, "bus", "buttons", nil); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.GetByLight("buttons", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetByLight(limit 2) returned %d entries", len(entries))
	}
	// Same second: newest row first
	if entries[0].IdempotencyKey != "c" || entries[1].IdempotencyKey != "b" {
		t.Errorf("order = %s, %s; want c, b", entries[0].IdempotencyKey, entries[1].IdempotencyKey)
	}
}

func TestLedger_Retention(t *testing.T) {
	l := openLedger(t)

	if err := l.AppendWithSource(EventBacklightSelected, "a", "bus", "", nil); err != nil {
		t.Fatal(err)
	}

	deleted, err := l.DeleteOlderThan(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("DeleteOlderThan(1h) deleted %d fresh entries", deleted)
	}

	deleted, err = l.DeleteOlderThan(-time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("DeleteOlderThan(-1m) deleted %d, want 1", deleted)
	}
}
