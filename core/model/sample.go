package model

import (
	"fmt"
	"math"
	"time"
)

// Sample is one snapshot of the simulated engine telemetry. Samples are values
// and are never modified once built.
type Sample struct {
	RPM         int     `json:"rpm"`
	SpeedKmH    int     `json:"speed_kmh"`
	FuelLiters  float64 `json:"fuel_liters"`
	FuelPercent float64 `json:"fuel_percent"` // derived from FuelLiters and the tank capacity
	EngineTempC int     `json:"engine_temp_c"`

	// Elapsed is the simulated time since the simulator was created.
	Elapsed  time.Duration `json:"elapsed"`
	EngineOn bool          `json:"engine_on"`
}

// NewSample builds a Sample from raw simulator quantities. Values are rounded
// to the precision exposed to sinks and the fuel percentage is derived from the
// tank capacity.
func NewSample(rpm, speedKmH, fuelLiters, tankLiters, tempC float64, elapsed time.Duration, engineOn bool) Sample {
	pct := 0.0
	if tankLiters > 0 {
		pct = fuelLiters / tankLiters * 100
	}
	return Sample{
		RPM:         int(math.Round(rpm)),
		SpeedKmH:    int(math.Round(speedKmH)),
		FuelLiters:  fuelLiters,
		FuelPercent: pct,
		EngineTempC: int(math.Round(tempC)),
		Elapsed:     elapsed,
		EngineOn:    engineOn,
	}
}

// Validate checks the invariants a sample received from an external source
// must respect.
func (s Sample) Validate() error {
	if s.SpeedKmH < 0 {
		return fmt.Errorf("speed must not be negative")
	}
	if s.RPM < 0 {
		return fmt.Errorf("rpm must not be negative")
	}
	if s.FuelLiters < 0 {
		return fmt.Errorf("fuel must not be negative")
	}
	if s.FuelPercent < 0 || s.FuelPercent > 100 {
		return fmt.Errorf("fuel percent %.1f out of range", s.FuelPercent)
	}
	return nil
}

// Line renders the per-step console line.
func (s Sample) Line() string {
	return fmt.Sprintf("Time: %.0fs | Speed: %d km/h | RPM: %d | Fuel: %.1f%%",
		s.Elapsed.Seconds(), s.SpeedKmH, s.RPM, s.FuelPercent)
}
