package simulator

import "github.com/kilianp07/enginesim/core/events"

// Option customises a Simulator.
type Option func(*Simulator)

// WithRandom replaces the default seeded random source.
func WithRandom(r Random) Option {
	return func(s *Simulator) {
		if r != nil {
			s.rnd = r
		}
	}
}

// WithPublisher sets the destination of vehicle events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Simulator) {
		if p != nil {
			s.pub = p
		}
	}
}
