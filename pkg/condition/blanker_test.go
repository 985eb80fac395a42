package condition

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBlanker_SuppressesImpulse exercises end-to-end scenario 4: a
// 10-sample spike at 40x RMS inserted into an otherwise steady baseband
// must be suppressed so that post-blanker RMS over the hit region
// stays within 2 dB of the pre-hit RMS, and no sample exceeds 3*RMS.
func TestBlanker_SuppressesImpulse(t *testing.T) {
	const n = 2000
	const steady = 0.1
	buf := make([]complex128, n)
	for i := range buf {
		buf[i] = complex(steady, 0)
	}
	spikeStart := 1000
	for i := spikeStart; i < spikeStart+10; i++ {
		buf[i] = complex(40*steady, 0)
	}

	b := NewBlanker()
	rms := b.Process(buf)

	for i := spikeStart; i < spikeStart+10; i++ {
		mag := cmplx.Abs(buf[i])
		assert.LessOrEqual(t, mag, 3*rms+1e-9)
	}

	var sumSq float64
	for i := spikeStart; i < spikeStart+10; i++ {
		mag := cmplx.Abs(buf[i])
		sumSq += mag * mag
	}
	postRMS := math.Sqrt(sumSq / 10)
	preRMS := steady

	ratioDB := 20 * math.Log10(postRMS/preRMS)
	assert.LessOrEqual(t, math.Abs(ratioDB), 2.0)
}

// TestBlanker_EmptyBuffer checks the zero-length guard.
func TestBlanker_EmptyBuffer(t *testing.T) {
	b := NewBlanker()
	assert.Equal(t, 0.0, b.Process(nil))
}
