// Package simulator models a single vehicle's engine telemetry over discrete
// time steps. The caller drives it with explicit elapsed durations; the
// simulator never reads the wall clock.
package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
)

// Simulator owns the physical state of one vehicle. It is not safe for
// concurrent use.
type Simulator struct {
	p      Params
	rnd    Random
	pub    events.Publisher
	engine *engine

	clock time.Duration
	speed float64
	rpm   float64
	fuel  float64
	temp  float64

	target     float64
	nextTarget time.Duration
	lowFuel    bool
}

// New creates a simulator at rest with a full tank. The first step picks a
// target speed.
func New(p Params, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vehicle params: %w", err)
	}
	s := &Simulator{
		p:    p,
		rnd:  NewRandom(0),
		pub:  events.Discard,
		rpm:  p.IdleRPM,
		fuel: p.TankLiters,
		temp: p.StartTempC,
	}
	for _, o := range opts {
		o(s)
	}
	s.engine = newEngine(s.onShutdown)
	return s, nil
}

// Step advances the simulation by elapsed and returns the resulting sample.
// Negative durations are treated as zero.
func (s *Simulator) Step(elapsed time.Duration) model.Sample {
	if elapsed < 0 {
		elapsed = 0
	}
	s.clock += elapsed

	if !s.engine.running() {
		s.halt()
		s.cool()
		return s.sample()
	}

	s.retarget()
	s.approach(elapsed)
	s.consumeFuel(elapsed)

	// Fuel may have run out during this step; the speed computed above must
	// not leak into the sample.
	if !s.engine.running() {
		s.halt()
		s.cool()
		return s.sample()
	}

	s.drift()
	return s.sample()
}

// State returns the current engine state.
func (s *Simulator) State() EngineState { return s.engine.state() }

// Elapsed returns the total simulated time.
func (s *Simulator) Elapsed() time.Duration { return s.clock }

// Target returns the speed the vehicle is currently steering toward.
func (s *Simulator) Target() float64 { return s.target }

// Params returns the parameters the simulator was built with.
func (s *Simulator) Params() Params { return s.p }

func (s *Simulator) retarget() {
	if s.clock < s.nextTarget {
		return
	}
	s.target = float64(s.rnd.IntRange(0, int(s.p.MaxSpeedKmH)))
	wait := s.rnd.Uniform(s.p.TargetMinSeconds, s.p.TargetMaxSeconds)
	s.nextTarget = s.clock + time.Duration(wait*float64(time.Second))
}

func (s *Simulator) approach(elapsed time.Duration) {
	secs := elapsed.Seconds()
	limit := s.p.MaxAccelKmHPerSec * secs
	change := clamp(s.target-s.speed, -limit, limit)
	if secs > 0 && s.p.SpeedNoiseKmH > 0 {
		change += s.rnd.Uniform(-s.p.SpeedNoiseKmH, s.p.SpeedNoiseKmH)
	}
	s.setSpeed(clamp(s.speed+change, 0, s.p.MaxSpeedKmH))
}

// setSpeed is the only place RPM is derived; it is reached from the running
// path only. Speeds below 1 km/h count as standing still so a reported speed
// of 1 always comes with an RPM above idle.
func (s *Simulator) setSpeed(v float64) {
	if v < 1 {
		v = 0
	}
	s.speed = v
	s.rpm = s.p.RPMFor(v)
}

func (s *Simulator) halt() {
	s.speed = 0
	s.rpm = 0
}

func (s *Simulator) cool() {
	if s.temp > s.p.AmbientTempC {
		s.temp = math.Max(s.p.AmbientTempC, s.temp-1)
	}
}

func (s *Simulator) drift() {
	d := 0.0
	if s.rpm > s.p.HotRPM {
		d += s.p.HotBiasC
	}
	if s.p.TempJitterC > 0 {
		d += s.rnd.Uniform(-s.p.TempJitterC, s.p.TempJitterC)
	}
	s.temp = clamp(s.temp+d, s.p.MinTempC, s.p.MaxTempC)
}

func (s *Simulator) fuelPercent() float64 {
	return s.fuel / s.p.TankLiters * 100
}

func (s *Simulator) sample() model.Sample {
	return model.NewSample(s.rpm, s.speed, s.fuel, s.p.TankLiters, s.temp, s.clock, s.engine.running())
}

func (s *Simulator) event(k events.Kind) events.VehicleEvent {
	return events.VehicleEvent{Kind: k, Elapsed: s.clock, FuelLiters: s.fuel, FuelPercent: s.fuelPercent()}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
