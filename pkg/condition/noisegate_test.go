package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPresets_OpenBeforeClose checks P3's invariant that every preset's
// open_factor is strictly below its close_factor.
func TestPresets_OpenBeforeClose(t *testing.T) {
	for _, name := range PresetNames {
		p, ok := Presets[name]
		assert.True(t, ok, "preset %q listed in PresetNames but missing from Presets", name)
		assert.Less(t, p.OpenFactor, p.CloseFactor, "preset %q", name)
	}
}

// TestNoiseGate_MonotonicEnvelopeTransitionsOnce checks P3's no-chatter
// guarantee: a strictly monotonically increasing envelope crosses the
// hysteresis band at most once.
func TestNoiseGate_MonotonicEnvelopeTransitionsOnce(t *testing.T) {
	for _, name := range PresetNames {
		g, err := NewNoiseGate(name)
		assert.NoError(t, err)

		transitions := 0
		wasOpen := g.Open()
		for i := 0; i < 2000; i++ {
			x := float64(i) * 0.001 // strictly increasing amplitude ramp
			g.Step(x)
			if g.Open() != wasOpen {
				transitions++
				wasOpen = g.Open()
			}
		}
		assert.LessOrEqual(t, transitions, 1, "preset %q chattered", name)
	}
}

// TestNoiseGate_SetPresetKeepsState checks that swapping the preset
// tuple does not reset envelope/noise-floor tracking.
func TestNoiseGate_SetPresetKeepsState(t *testing.T) {
	g, err := NewNoiseGate("balanced")
	assert.NoError(t, err)
	for i := 0; i < 100; i++ {
		g.Step(1.0)
	}
	envBefore := g.envelope
	assert.NoError(t, g.SetPreset("aggressive"))
	assert.Equal(t, envBefore, g.envelope)
	assert.Equal(t, "aggressive", g.PresetName())
}

// TestNoiseGate_UnknownPreset checks both the constructor and SetPreset
// reject unrecognized names.
func TestNoiseGate_UnknownPreset(t *testing.T) {
	_, err := NewNoiseGate("does-not-exist")
	assert.Error(t, err)

	g, err := NewNoiseGate("balanced")
	assert.NoError(t, err)
	assert.Error(t, g.SetPreset("does-not-exist"))
}
