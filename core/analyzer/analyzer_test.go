package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/model"
)

func speedSample(v int) model.Sample {
	return model.Sample{SpeedKmH: v, RPM: 800 + 10*v, FuelLiters: 40, FuelPercent: 80, EngineTempC: 90}
}

func TestEmptyWindow(t *testing.T) {
	a := New(10)
	_, ok := a.Summary()
	assert.False(t, ok)
	assert.Equal(t, NoSamplesMessage, Format(a))
	assert.Empty(t, a.Samples())
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultWindowSize, New(0).Cap())
	assert.Equal(t, DefaultWindowSize, New(-3).Cap())
}

func TestSummaryValues(t *testing.T) {
	a := New(100)
	a.Add(model.Sample{SpeedKmH: 10, RPM: 1000, FuelLiters: 49, FuelPercent: 98, EngineTempC: 88})
	a.Add(model.Sample{SpeedKmH: 25, RPM: 1900, FuelLiters: 48.5, FuelPercent: 97, EngineTempC: 91})

	r, ok := a.Summary()
	require.True(t, ok)
	assert.Equal(t, 2, r.Samples)
	assert.InDelta(t, 17.5, r.AvgSpeedKmH, 1e-9)
	assert.InDelta(t, 1450, r.AvgRPM, 1e-9)
	assert.Equal(t, 25, r.MaxSpeedKmH)
	assert.Equal(t, 1900, r.MaxRPM)
	assert.Equal(t, 48.5, r.LastFuelLiters)
	assert.Equal(t, 97.0, r.LastFuelPercent)
	assert.Equal(t, 91, r.LastEngineTempC)
	assert.Equal(t, "Analysis: samples=2  AvgSpeed=17.5 km/h  AvgRPM=1450  MaxSpeed=25 km/h  MaxRPM=1900  Fuel=48.50L (97.0%)  Temp=91°C", r.String())
}

func TestMeansKeepPrecision(t *testing.T) {
	a := New(3)
	for _, v := range []int{1, 2, 2} {
		a.Add(speedSample(v))
	}
	r, _ := a.Summary()
	assert.InDelta(t, 5.0/3.0, r.AvgSpeedKmH, 1e-12)
	assert.Contains(t, r.String(), "AvgSpeed=1.7 km/h")
}

func TestEvictsOldestFirst(t *testing.T) {
	a := New(100)
	for v := 1; v <= 150; v++ {
		a.Add(speedSample(v))
	}
	r, ok := a.Summary()
	require.True(t, ok)
	assert.Equal(t, 150, r.MaxSpeedKmH)
	assert.Equal(t, 100, r.Samples)
	assert.Equal(t, 100, a.Len())

	got := a.Samples()
	require.Len(t, got, 100)
	for i, s := range got {
		require.Equal(t, 51+i, s.SpeedKmH)
	}
	assert.InDelta(t, 100.5, r.AvgSpeedKmH, 1e-9)
}

func TestSummaryIsIdempotent(t *testing.T) {
	a := New(4)
	for v := 1; v <= 6; v++ {
		a.Add(speedSample(v))
	}
	before := a.Samples()
	r1, ok1 := a.Summary()
	r2, ok2 := a.Summary()
	assert.True(t, ok1)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, before, a.Samples())
}

func TestClear(t *testing.T) {
	a := New(5)
	for v := 1; v <= 7; v++ {
		a.Add(speedSample(v))
	}
	a.Clear()
	_, ok := a.Summary()
	assert.False(t, ok)
	assert.Zero(t, a.Len())

	a.Add(speedSample(9))
	r, ok := a.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, r.Samples)
	assert.Equal(t, 9, r.MaxSpeedKmH)
	assert.Equal(t, []model.Sample{speedSample(9)}, a.Samples())
}
