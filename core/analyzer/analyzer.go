// Package analyzer keeps a bounded window of recent samples and summarises it.
package analyzer

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/enginesim/core/model"
)

// DefaultWindowSize is the number of samples retained when none is configured.
const DefaultWindowSize = 100

// Analyzer is a fixed-capacity FIFO window of samples. It is not safe for
// concurrent use.
type Analyzer struct {
	buf   []model.Sample
	head  int // index of the oldest sample
	count int
}

// New returns an analyzer retaining at most size samples. Non-positive sizes
// fall back to DefaultWindowSize.
func New(size int) *Analyzer {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Analyzer{buf: make([]model.Sample, size)}
}

// Add appends s, evicting the oldest sample when the window is full.
func (a *Analyzer) Add(s model.Sample) {
	if a.count < len(a.buf) {
		a.buf[(a.head+a.count)%len(a.buf)] = s
		a.count++
		return
	}
	a.buf[a.head] = s
	a.head = (a.head + 1) % len(a.buf)
}

// Clear drops every retained sample.
func (a *Analyzer) Clear() {
	a.head = 0
	a.count = 0
}

// Len returns the number of retained samples.
func (a *Analyzer) Len() int { return a.count }

// Cap returns the window capacity.
func (a *Analyzer) Cap() int { return len(a.buf) }

// Samples returns a copy of the retained samples, oldest first.
func (a *Analyzer) Samples() []model.Sample {
	out := make([]model.Sample, a.count)
	for i := range out {
		out[i] = a.buf[(a.head+i)%len(a.buf)]
	}
	return out
}

// Summary computes the report over the retained samples. ok is false when the
// window is empty.
func (a *Analyzer) Summary() (r Report, ok bool) {
	if a.count == 0 {
		return Report{}, false
	}
	speeds := make([]float64, a.count)
	rpms := make([]float64, a.count)
	for i := 0; i < a.count; i++ {
		s := a.buf[(a.head+i)%len(a.buf)]
		speeds[i] = float64(s.SpeedKmH)
		rpms[i] = float64(s.RPM)
	}
	last := a.buf[(a.head+a.count-1)%len(a.buf)]
	return Report{
		Samples:         a.count,
		AvgSpeedKmH:     stat.Mean(speeds, nil),
		AvgRPM:          stat.Mean(rpms, nil),
		MaxSpeedKmH:     int(floats.Max(speeds)),
		MaxRPM:          int(floats.Max(rpms)),
		LastFuelLiters:  last.FuelLiters,
		LastFuelPercent: last.FuelPercent,
		LastEngineTempC: last.EngineTempC,
	}, true
}
