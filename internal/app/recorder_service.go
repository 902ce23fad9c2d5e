package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/eventbus"
	"github.com/dokzlo13/lightshal/internal/ledger"
	"github.com/dokzlo13/lightshal/internal/middleware"
)

// Sources stored with ledger entries
const (
	SourceBus   = "bus"
	SourceInput = "input"
)

// maxActivityBatch bounds one input_activity flush
const maxActivityBatch = 1000

// RecorderService writes bus events into the ledger.
// Input activity is batched into one entry per light per interval.
type RecorderService struct {
	cfg      *config.Config
	ledger   *ledger.Ledger
	bus      *eventbus.Bus
	activity middleware.Collector
}

// NewRecorderService creates a new RecorderService.
func NewRecorderService(cfg *config.Config, l *ledger.Ledger, bus *eventbus.Bus) *RecorderService {
	s := &RecorderService{
		cfg:    cfg,
		ledger: l,
		bus:    bus,
	}
	s.activity = middleware.NewIntervalCollector(cfg.Ledger.ActivityInterval.Duration(), maxActivityBatch, s.flushActivity)
	return s
}

// Start subscribes to the bus and runs the retention cleanup.
func (s *RecorderService) Start(ctx context.Context) {
	for _, t := range []eventbus.EventType{
		eventbus.EventTypeLightSet,
		eventbus.EventTypeLightFailed,
		eventbus.EventTypeBacklightSelected,
		eventbus.EventTypeWatchdogOn,
		eventbus.EventTypeWatchdogOff,
	} {
		s.bus.Subscribe(t, s.record)
	}
	s.bus.Subscribe(eventbus.EventTypeInputActivity, func(event eventbus.Event) {
		light, _ := event.Data["light"].(string)
		s.activity.AddEvent(map[string]any{
			"light": light,
			"at":    time.Now().UTC().Unix(),
		})
	})

	go s.runLedgerCleanup(ctx)
}

func (s *RecorderService) record(event eventbus.Event) {
	light, _ := event.Data["light"].(string)
	if err := s.ledger.AppendWithSource(ledger.EventType(event.Type), event.ID, SourceBus, light, event.Data); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to record event")
	}
}

// flushActivity writes one entry per light with the count and time span of the batch
func (s *RecorderService) flushActivity(events []map[string]any) {
	type span struct {
		count       int
		first, last int64
	}
	byLight := make(map[string]*span)
	for _, e := range events {
		light, _ := e["light"].(string)
		at, _ := e["at"].(int64)
		sp, ok := byLight[light]
		if !ok {
			byLight[light] = &span{count: 1, first: at, last: at}
			continue
		}
		sp.count++
		if at < sp.first {
			sp.first = at
		}
		if at > sp.last {
			sp.last = at
		}
	}

	for light, sp := range byLight {
		err := s.ledger.AppendWithSource(ledger.EventInputActivity, uuid.NewString(), SourceInput, light, map[string]any{
			"count": sp.count,
			"first": sp.first,
			"last":  sp.last,
		})
		if err != nil {
			log.Error().Err(err).Str("light", light).Int("count", sp.count).Msg("Failed to record input activity")
		}
	}
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *RecorderService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Close flushes pending activity. Call after the bus has drained.
func (s *RecorderService) Close() {
	s.activity.Close()
}
