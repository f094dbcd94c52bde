package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/infra/logger"
	"github.com/kilianp07/enginesim/internal/eventbus"
)

type eventRecorder struct {
	mu  sync.Mutex
	got []events.VehicleEvent
	err error
}

func (r *eventRecorder) RecordEvent(_ context.Context, ev events.VehicleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return r.err
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestEventCollectorForwards(t *testing.T) {
	bus := eventbus.New[events.VehicleEvent]()
	rec := &eventRecorder{err: errors.New("ignored")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := StartEventCollector(ctx, bus, rec, logger.NopLogger{})

	bus.Publish(events.VehicleEvent{Kind: events.LowFuelWarning})
	bus.Publish(events.VehicleEvent{Kind: events.EngineShutdown})
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after bus close")
	}
	require.Equal(t, events.LowFuelWarning, rec.got[0].Kind)
	require.Equal(t, events.EngineShutdown, rec.got[1].Kind)
}

func TestEventCollectorStopsOnCancel(t *testing.T) {
	bus := eventbus.New[events.VehicleEvent]()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, nil, nil)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, nil, nil)
	_, open := <-done
	assert.False(t, open)
}
