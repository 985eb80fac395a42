package condition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSpectralBlanker_DisabledIsNoop checks §4.4d's default-off
// behavior: Process must not mutate buf while disabled.
func TestSpectralBlanker_DisabledIsNoop(t *testing.T) {
	b := NewSpectralBlanker()
	assert.False(t, b.Enabled())

	buf := []float64{1, -2, 3, -4}
	want := append([]float64(nil), buf...)
	b.Process(buf)
	assert.Equal(t, want, buf)
}

// TestSpectralBlanker_EnabledProducesFiniteOutput checks that once
// enabled and fed enough samples to fill one FFT block, the delayed
// output queue drains finite, non-exploding values into the caller's
// buffer.
func TestSpectralBlanker_EnabledProducesFiniteOutput(t *testing.T) {
	b := NewSpectralBlanker()
	b.SetEnabled(true)
	assert.True(t, b.Enabled())

	chunk := make([]float64, 256)
	for i := range chunk {
		chunk[i] = math.Sin(2 * math.Pi * float64(i) / 32)
	}

	// Feed enough hops to fill one full spectralFFTSize block and drain
	// at least one output chunk.
	for i := 0; i < 10; i++ {
		buf := append([]float64(nil), chunk...)
		b.Process(buf)
		for _, v := range buf {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "blanked output must stay finite")
		}
	}
}
