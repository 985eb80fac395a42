package condition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestAGC_ClampsOutput checks P4: for any bounded input, the AGC's
// output magnitude never exceeds desiredLevel*maxGain*agcOutputScale,
// plus a small epsilon.
func TestAGC_ClampsOutput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		desired := rapid.Float64Range(0.01, 1.0).Draw(t, "desired")
		maxGain := rapid.Float64Range(1.0, 500.0).Draw(t, "maxGain")
		a := NewAGC(12000, desired, maxGain)
		if rapid.Bool().Draw(t, "amMode") {
			a.ConfigureForAM()
		}

		bound := desired * maxGain * agcOutputScale
		samples := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 500).Draw(t, "samples")
		for _, x := range samples {
			out := a.Step(x)
			assert.LessOrEqual(t, math.Abs(out), bound+1e-6)
		}
	})
}

// TestAGC_ResetRestoresUnityGain checks Reset clears the cascade back
// to unity gain.
func TestAGC_ResetRestoresUnityGain(t *testing.T) {
	a := NewAGC(12000, 0.5, 100)
	for i := 0; i < 1000; i++ {
		a.Step(0.001)
	}
	a.Reset()
	for i := range a.stages {
		assert.Equal(t, 1.0, a.stages[i].gain)
	}
}

// TestAGC_SilenceDoesNotBlowUp checks near-zero input (the division
// guard's target case) produces a finite, bounded output.
func TestAGC_SilenceDoesNotBlowUp(t *testing.T) {
	a := NewAGC(12000, 0.3, 50)
	out := a.Step(0)
	assert.False(t, math.IsNaN(out))
	assert.False(t, math.IsInf(out, 0))
}
