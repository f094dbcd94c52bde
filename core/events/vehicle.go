package events

import (
	"fmt"
	"time"
)

// Kind identifies a vehicle event.
type Kind int

const (
	LowFuelWarning Kind = iota + 1
	EngineShutdown
)

func (k Kind) String() string {
	switch k {
	case LowFuelWarning:
		return "low_fuel_warning"
	case EngineShutdown:
		return "engine_shutdown"
	default:
		return "unknown"
	}
}

// VehicleEvent is published when the simulated vehicle changes condition.
type VehicleEvent struct {
	Kind        Kind          `json:"kind"`
	Elapsed     time.Duration `json:"elapsed"`
	FuelLiters  float64       `json:"fuel_liters"`
	FuelPercent float64       `json:"fuel_percent"`
}

// Message renders the human readable notice for the event.
func (e VehicleEvent) Message() string {
	switch e.Kind {
	case LowFuelWarning:
		return fmt.Sprintf("low fuel: %.2f L left (%.1f%%)", e.FuelLiters, e.FuelPercent)
	case EngineShutdown:
		return "out of fuel, engine stopped"
	default:
		return e.Kind.String()
	}
}

// Publisher receives events from the simulator. Implementations must not
// block.
type Publisher interface {
	Publish(VehicleEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(VehicleEvent)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e VehicleEvent) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(VehicleEvent) {})
