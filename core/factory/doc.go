// Package factory provides the generic registry used to build telemetry sinks
// from configuration. A module is described by a type name and a map of raw
// settings; each factory decodes the settings into its own struct and returns
// the concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[telemetry.Sink]()
//	reg.Register("thingspeak", func(conf map[string]any) (telemetry.Sink, error) {
//	    var c thingspeak.Config
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return thingspeak.New(c)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "thingspeak", Conf: map[string]any{"api_key": "XYZ"}})
package factory
