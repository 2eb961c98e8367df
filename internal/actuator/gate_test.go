package actuator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sensor-loop/internal/gpio"
	"github.com/sweeney/sensor-loop/internal/logic"
)

func TestGateWritesInitialLevel(t *testing.T) {
	out := gpio.NewFakeOutput()
	g := NewGate("GPIO23", out, true)

	level, ok := out.Level()
	require.True(t, ok)
	assert.True(t, level)
	assert.Equal(t, State{Pin: "GPIO23", Level: true}, g.State())
}

func TestGateSetIsIdempotent(t *testing.T) {
	out := gpio.NewFakeOutput()
	g := NewGate("GPIO23", out, false)

	g.Set(false)
	g.Set(false)
	assert.Equal(t, 1, out.WriteCount(), "repeated level should not be written")

	g.Set(true)
	g.Set(true)
	assert.Equal(t, 2, out.WriteCount())
	assert.True(t, g.State().Level)

	g.Set(false)
	assert.Equal(t, []bool{false, true, false}, out.Writes)
}

func TestGateSwallowsWriteErrors(t *testing.T) {
	out := gpio.NewFakeOutput()
	g := NewGate("GPIO23", out, false)
	out.WriteError = errors.New("line busy")

	g.Set(true)
	assert.True(t, g.State().Level, "commanded level is recorded even when the write fails")
}

func TestGateClose(t *testing.T) {
	out := gpio.NewFakeOutput()
	g := NewGate("GPIO23", out, false)
	require.NoError(t, g.Close())
	assert.True(t, out.Closed)
}

func TestPolicyLevel(t *testing.T) {
	// Heater: on when below, off otherwise.
	p := Policy{Below: true}
	assert.True(t, p.Level(logic.VerdictBelow))
	assert.False(t, p.Level(logic.VerdictNormal))
	assert.False(t, p.Level(logic.VerdictAbove))
	assert.False(t, p.Level(logic.VerdictUnknown))

	// Alarm outside the band.
	p = Policy{Below: true, Above: true}
	assert.True(t, p.Level(logic.VerdictAbove))
	assert.False(t, p.Level(logic.VerdictNormal))
}
