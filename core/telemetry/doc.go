// Package telemetry defines the contract between the simulator loop and the
// services samples are delivered to. Sinks like the ThingSpeak client, the
// MQTT publisher, InfluxSink and PromSink implement Sink and can be combined
// with NewMultiSink. NewSink builds them from configuration and returns a
// MultiSink automatically when several are configured.
package telemetry
