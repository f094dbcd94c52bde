package metrics

import (
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/telemetry"
)

// init registers the built-in metrics sinks.
func init() {
	_ = telemetry.RegisterSink("prometheus", func(map[string]any) (telemetry.Sink, error) {
		s, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	_ = telemetry.RegisterSink("influx", func(conf map[string]any) (telemetry.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
