package simulator

import "fmt"

// Params holds the physical constants of the simulated vehicle.
type Params struct {
	MaxSpeedKmH  float64 `json:"max_speed_kmh"`
	IdleRPM      float64 `json:"idle_rpm"`
	MaxRPM       float64 `json:"max_rpm"`
	TankLiters   float64 `json:"tank_liters"`
	StartTempC   float64 `json:"start_temp_c"`
	MinTempC     float64 `json:"min_temp_c"`
	MaxTempC     float64 `json:"max_temp_c"`
	AmbientTempC float64 `json:"ambient_temp_c"` // floor the engine cools toward once stopped

	MaxAccelKmHPerSec float64 `json:"max_accel_kmh_per_sec"`
	SpeedNoiseKmH     float64 `json:"speed_noise_kmh"`
	TargetMinSeconds  float64 `json:"target_min_seconds"`
	TargetMaxSeconds  float64 `json:"target_max_seconds"`

	LowFuelPercent    float64 `json:"low_fuel_percent"`
	IdleLitersPerHour float64 `json:"idle_liters_per_hour"`
	TimeScale         float64 `json:"time_scale"`
	BaseLitersPer100  float64 `json:"base_liters_per_100km"`
	CurveK            float64 `json:"curve_k"`
	OptimalSpeedKmH   float64 `json:"optimal_speed_kmh"`
	CurveScaleKmH     float64 `json:"curve_scale_kmh"`
	RPMFactor         float64 `json:"rpm_factor"`

	HotRPM      float64 `json:"hot_rpm"`
	HotBiasC    float64 `json:"hot_bias_c"`
	TempJitterC float64 `json:"temp_jitter_c"`
}

// DefaultParams returns a mid-size petrol car.
func DefaultParams() Params {
	return Params{
		MaxSpeedKmH:       120,
		IdleRPM:           800,
		MaxRPM:            6000,
		TankLiters:        50,
		StartTempC:        90,
		MinTempC:          20,
		MaxTempC:          120,
		AmbientTempC:      20,
		MaxAccelKmHPerSec: 3,
		SpeedNoiseKmH:     0.5,
		TargetMinSeconds:  30,
		TargetMaxSeconds:  60,
		LowFuelPercent:    25,
		IdleLitersPerHour: 0.8,
		TimeScale:         1,
		BaseLitersPer100:  5.5,
		CurveK:            2,
		OptimalSpeedKmH:   80,
		CurveScaleKmH:     40,
		RPMFactor:         0.1,
		HotRPM:            4000,
		HotBiasC:          0.5,
		TempJitterC:       0.5,
	}
}

// Validate checks that the parameter set is consistent.
//
//nolint:gocyclo
func (p Params) Validate() error {
	switch {
	case p.MaxSpeedKmH <= 0:
		return fmt.Errorf("max speed must be positive")
	case p.IdleRPM <= 0:
		return fmt.Errorf("idle rpm must be positive")
	case p.MaxRPM <= p.IdleRPM:
		return fmt.Errorf("max rpm %.0f must exceed idle rpm %.0f", p.MaxRPM, p.IdleRPM)
	case p.TankLiters <= 0:
		return fmt.Errorf("tank capacity must be positive")
	case p.MinTempC > p.MaxTempC:
		return fmt.Errorf("min temperature %.1f above max %.1f", p.MinTempC, p.MaxTempC)
	case p.StartTempC < p.MinTempC || p.StartTempC > p.MaxTempC:
		return fmt.Errorf("start temperature %.1f outside [%.1f, %.1f]", p.StartTempC, p.MinTempC, p.MaxTempC)
	case p.AmbientTempC < p.MinTempC || p.AmbientTempC > p.MaxTempC:
		return fmt.Errorf("ambient temperature %.1f outside [%.1f, %.1f]", p.AmbientTempC, p.MinTempC, p.MaxTempC)
	case p.MaxAccelKmHPerSec <= 0:
		return fmt.Errorf("max acceleration must be positive")
	case p.SpeedNoiseKmH < 0 || p.TempJitterC < 0:
		return fmt.Errorf("noise bands must not be negative")
	case p.TargetMinSeconds <= 0 || p.TargetMaxSeconds < p.TargetMinSeconds:
		return fmt.Errorf("invalid target change window [%.0f, %.0f]s", p.TargetMinSeconds, p.TargetMaxSeconds)
	case p.LowFuelPercent < 0 || p.LowFuelPercent > 100:
		return fmt.Errorf("low fuel threshold must be within [0,100]")
	case p.IdleLitersPerHour < 0 || p.BaseLitersPer100 < 0 || p.CurveK < 0 || p.RPMFactor < 0:
		return fmt.Errorf("consumption constants must not be negative")
	case p.TimeScale <= 0:
		return fmt.Errorf("time scale must be positive")
	case p.CurveScaleKmH <= 0:
		return fmt.Errorf("curve scale must be positive")
	}
	return nil
}

// RPMFor returns the engine speed for the given vehicle speed. It is idle
// below 1 km/h and linear between idle and max RPM above.
func (p Params) RPMFor(speedKmH float64) float64 {
	if speedKmH < 1 {
		return p.IdleRPM
	}
	return p.IdleRPM + (p.MaxRPM-p.IdleRPM)*speedKmH/p.MaxSpeedKmH
}

// LitersPer100Km is the convex consumption curve, minimal at OptimalSpeedKmH.
func (p Params) LitersPer100Km(speedKmH float64) float64 {
	x := (speedKmH - p.OptimalSpeedKmH) / p.CurveScaleKmH
	return p.BaseLitersPer100 + p.CurveK*x*x
}

// rpmMultiplier scales consumption up modestly at high engine speed.
func (p Params) rpmMultiplier(rpm float64) float64 {
	load := (rpm - p.IdleRPM) / (p.MaxRPM - p.IdleRPM)
	if load < 0 {
		load = 0
	}
	return 1 + p.RPMFactor*load
}
