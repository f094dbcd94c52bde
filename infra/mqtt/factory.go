package mqtt

import (
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/telemetry"
)

func init() {
	_ = telemetry.RegisterSink("mqtt", func(conf map[string]any) (telemetry.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		pub, err := NewPublisher(c)
		if err != nil {
			return nil, err
		}
		return pub, nil
	})
}
