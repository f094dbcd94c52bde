package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/telemetry"
)

// PromSink exposes the latest sample as gauges and counts samples, sink
// deliveries and vehicle events.
type PromSink struct {
	speed      prometheus.Gauge
	rpm        prometheus.Gauge
	fuelLiters prometheus.Gauge
	fuelPct    prometheus.Gauge
	temp       prometheus.Gauge
	engineOn   prometheus.Gauge
	samples    prometheus.Counter
	deliveries *prometheus.CounterVec
	events     *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "enginesim", Name: name, Help: help})
	}
	s := &PromSink{
		speed:      gauge("speed_kmh", "Vehicle speed of the latest sample"),
		rpm:        gauge("engine_rpm", "Engine RPM of the latest sample"),
		fuelLiters: gauge("fuel_liters", "Fuel left in the tank"),
		fuelPct:    gauge("fuel_percent", "Fuel left as a percentage of the tank"),
		temp:       gauge("engine_temp_celsius", "Engine temperature of the latest sample"),
		engineOn:   gauge("engine_on", "1 while the engine runs, 0 once stopped"),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enginesim", Name: "samples_total", Help: "Samples produced by the simulator",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enginesim", Name: "sink_deliveries_total", Help: "Sample deliveries to the configured sinks",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enginesim", Name: "vehicle_events_total", Help: "Vehicle events by kind",
		}, []string{"kind"}),
	}

	var err error
	for _, g := range []*prometheus.Gauge{&s.speed, &s.rpm, &s.fuelLiters, &s.fuelPct, &s.temp, &s.engineOn} {
		if *g, err = register(reg, *g); err != nil {
			return nil, err
		}
	}
	if s.samples, err = register(reg, s.samples); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.events, err = register(reg, s.events); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// Send updates the gauges with the sample.
func (s *PromSink) Send(_ context.Context, smp model.Sample) error {
	s.speed.Set(float64(smp.SpeedKmH))
	s.rpm.Set(float64(smp.RPM))
	s.fuelLiters.Set(smp.FuelLiters)
	s.fuelPct.Set(smp.FuelPercent)
	s.temp.Set(float64(smp.EngineTempC))
	if smp.EngineOn {
		s.engineOn.Set(1)
	} else {
		s.engineOn.Set(0)
	}
	s.samples.Inc()
	return nil
}

// RecordEvent counts the event by kind.
func (s *PromSink) RecordEvent(_ context.Context, ev events.VehicleEvent) error {
	s.events.WithLabelValues(ev.Kind.String()).Inc()
	return nil
}

// RecordDelivery counts the outcome of a sample delivery as sent, skipped
// (throttled by a sink) or failed.
func (s *PromSink) RecordDelivery(err error) {
	switch {
	case err == nil:
		s.deliveries.WithLabelValues("sent").Inc()
	case telemetry.Throttled(err):
		s.deliveries.WithLabelValues("skipped").Inc()
	default:
		s.deliveries.WithLabelValues("failed").Inc()
	}
}
