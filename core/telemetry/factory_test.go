package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/factory"
)

/*
TestNewSink validates NewSink behavior with zero, one, and multiple configs.
Cases:
  - no config -> NopSink
  - one config -> the sink itself
  - two configs -> MultiSink with two sub-sinks
  - unknown type -> error
*/
func TestNewSink(t *testing.T) {
	s, err := NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	m, ok := s.(*MultiSink)
	require.True(t, ok, "expected MultiSink, got %T", s)
	assert.Len(t, m.Sinks, 2)

	_, err = NewSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "missing"}})
	assert.Error(t, err)
}

func TestRegisteredSinksIncludesNop(t *testing.T) {
	assert.Contains(t, RegisteredSinks(), "nop")
}
