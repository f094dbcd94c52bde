package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/enginesim/core/simulator"
)

// DefaultTickInterval paces the service loop when tick_interval is not set.
const DefaultTickInterval = time.Second

// SimulationConfig drives the service loop.
type SimulationConfig struct {
	// Vehicle starts from simulator.DefaultParams; keys present in the
	// configuration override individual values.
	Vehicle simulator.Params `json:"vehicle"`
	// Step is the simulated time advanced per tick.
	Step time.Duration `json:"step"`
	// TickInterval is the wall-clock time between ticks, DefaultTickInterval
	// unless configured. An explicit zero runs as fast as the sinks allow.
	TickInterval time.Duration `json:"tick_interval"`
	// Duration stops the run after this much simulated time. Zero runs until
	// the engine stops or the run is canceled.
	Duration time.Duration `json:"duration"`
	// StopOnShutdown ends the run on the step the engine runs out of fuel even
	// when Duration has not elapsed yet.
	StopOnShutdown bool `json:"stop_on_shutdown"`
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64 `json:"seed"`
	// SendTimeout bounds each sample delivery to the sinks.
	SendTimeout time.Duration `json:"send_timeout"`
}

// NewSimulationConfig returns a config whose vehicle holds the default
// parameters.
func NewSimulationConfig() SimulationConfig {
	c := SimulationConfig{Vehicle: simulator.DefaultParams(), TickInterval: DefaultTickInterval}
	c.SetDefaults()
	return c
}

// SetDefaults applies sane defaults.
func (c *SimulationConfig) SetDefaults() {
	if c.Step <= 0 {
		c.Step = time.Second
	}
	if c.TickInterval < 0 {
		c.TickInterval = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
}

// Validate checks the vehicle parameters and durations.
func (c SimulationConfig) Validate() error {
	if err := c.Vehicle.Validate(); err != nil {
		return fmt.Errorf("vehicle: %w", err)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// AnalyzerConfig sizes the rolling window and the summary cadence.
type AnalyzerConfig struct {
	WindowSize int `json:"window_size"`
	// SummaryEvery logs the summary every N steps. Zero disables it.
	SummaryEvery int `json:"summary_every"`
}

// SetDefaults applies sane defaults.
func (c *AnalyzerConfig) SetDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
}

// Validate checks mandatory fields.
func (c AnalyzerConfig) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1")
	}
	if c.SummaryEvery < 0 {
		return fmt.Errorf("summary_every must not be negative")
	}
	return nil
}
