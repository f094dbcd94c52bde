package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/logger"
	"github.com/kilianp07/enginesim/internal/eventbus"
)

// recordTimeout bounds each RecordEvent call.
const recordTimeout = 5 * time.Second

// StartEventCollector subscribes to the event bus, logs every vehicle event
// and forwards it to rec. It stops when the context is canceled or the bus
// is closed; the returned channel is closed once it has stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.VehicleEvent], rec telemetry.EventRecorder, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				logEvent(log, ev)
				if rec == nil {
					continue
				}
				rctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
				if err := rec.RecordEvent(rctx, ev); err != nil {
					log.Errorf("record %s: %v", ev.Kind, err)
				}
				cancel()
			}
		}
	}()
	return done
}

func logEvent(log logger.Logger, ev events.VehicleEvent) {
	fields := map[string]any{
		"kind":         ev.Kind.String(),
		"elapsed_s":    ev.Elapsed.Seconds(),
		"fuel_liters":  ev.FuelLiters,
		"fuel_percent": ev.FuelPercent,
	}
	switch ev.Kind {
	case events.LowFuelWarning:
		log.Warnf("%s", ev.Message())
	case events.EngineShutdown:
		log.Errorf("%s", ev.Message())
	}
	log.Debugw("vehicle event", fields)
}
