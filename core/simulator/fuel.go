package simulator

import (
	"math"
	"time"

	"github.com/kilianp07/enginesim/core/events"
)

func (s *Simulator) consumeFuel(elapsed time.Duration) {
	if !s.engine.running() {
		return
	}
	s.checkLowFuel()
	if s.fuel <= 0 {
		s.exhaust()
		return
	}

	s.fuel = math.Max(0, s.fuel-s.litersUsed(elapsed))
	if s.fuel <= 0 {
		s.exhaust()
		return
	}
	s.checkLowFuel()
}

func (s *Simulator) litersUsed(elapsed time.Duration) float64 {
	hours := elapsed.Hours()
	var liters float64
	if s.speed < 1 {
		liters = s.p.IdleLitersPerHour * hours * s.p.TimeScale
	} else {
		km := s.speed * hours
		liters = s.p.LitersPer100Km(s.speed) * km / 100
	}
	return liters * s.p.rpmMultiplier(s.rpm)
}

// checkLowFuel fires the warning once per simulator; the latch is never reset
// because the tank cannot be refilled.
func (s *Simulator) checkLowFuel() {
	if s.lowFuel || s.fuel <= 0 {
		return
	}
	if s.fuelPercent() <= s.p.LowFuelPercent {
		s.lowFuel = true
		s.pub.Publish(s.event(events.LowFuelWarning))
	}
}

func (s *Simulator) exhaust() {
	s.fuel = 0
	s.halt()
	s.engine.stop()
}

// onShutdown runs on the Running -> Stopped transition, which happens once.
func (s *Simulator) onShutdown() {
	s.pub.Publish(s.event(events.EngineShutdown))
}
