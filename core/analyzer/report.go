package analyzer

import "fmt"

// NoSamplesMessage is printed in place of a report for an empty window.
const NoSamplesMessage = "No samples available."

// Report aggregates the retained window. Means keep full precision; only
// String rounds them.
type Report struct {
	Samples         int     `json:"samples"`
	AvgSpeedKmH     float64 `json:"avg_speed_kmh"`
	AvgRPM          float64 `json:"avg_rpm"`
	MaxSpeedKmH     int     `json:"max_speed_kmh"`
	MaxRPM          int     `json:"max_rpm"`
	LastFuelLiters  float64 `json:"fuel_liters"`
	LastFuelPercent float64 `json:"fuel_percent"`
	LastEngineTempC int     `json:"engine_temp_c"`
}

func (r Report) String() string {
	return fmt.Sprintf("Analysis: samples=%d  AvgSpeed=%.1f km/h  AvgRPM=%.0f  MaxSpeed=%d km/h  MaxRPM=%d  Fuel=%.2fL (%.1f%%)  Temp=%d°C",
		r.Samples, r.AvgSpeedKmH, r.AvgRPM, r.MaxSpeedKmH, r.MaxRPM, r.LastFuelLiters, r.LastFuelPercent, r.LastEngineTempC)
}

// Format renders the summary of a, or NoSamplesMessage when it is empty.
func Format(a *Analyzer) string {
	r, ok := a.Summary()
	if !ok {
		return NoSamplesMessage
	}
	return r.String()
}
