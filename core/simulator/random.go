package simulator

import (
	"math/rand"
	"time"
)

// Random is the source of randomness used for target wandering, speed noise
// and temperature drift.
type Random interface {
	// Uniform returns a value in [min, max).
	Uniform(min, max float64) float64
	// IntRange returns a value in [min, max].
	IntRange(min, max int) int
}

type mathRandom struct {
	rng *rand.Rand
}

// NewRandom returns a Random backed by math/rand. A zero seed picks one from
// the clock.
func NewRandom(seed int64) Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &mathRandom{rng: rand.New(rand.NewSource(seed))}
}

func (m *mathRandom) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + m.rng.Float64()*(max-min)
}

func (m *mathRandom) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + m.rng.Intn(max-min+1)
}
