package condition

import "math"

const (
	// DefaultThresholdMul is the default impulse trigger multiple of RMS.
	DefaultThresholdMul = 3.0
	// DefaultBlankLen is the default number of samples replaced after a trigger.
	DefaultBlankLen = 32
)

// Blanker implements the impulse blanker of §4.4a: a hold-and-blank
// strategy operating on complex baseband samples, pre-PLL. Any sample
// whose magnitude exceeds thresholdMul*rms triggers blankLen subsequent
// samples to be replaced by the last good sample, preserving phase
// continuity.
type Blanker struct {
	ThresholdMul float64
	BlankLen     int
}

// NewBlanker builds a blanker with the §4.4a defaults.
func NewBlanker() *Blanker {
	return &Blanker{ThresholdMul: DefaultThresholdMul, BlankLen: DefaultBlankLen}
}

// Process blanks impulses in a complex half-frame in place and returns
// the RMS computed over the (pre-blanking) input, useful as a power
// diagnostic.
func (b *Blanker) Process(buf []complex128) (rms float64) {
	if len(buf) == 0 {
		return 0
	}
	var sumSq float64
	for _, z := range buf {
		sumSq += real(z)*real(z) + imag(z)*imag(z)
	}
	rms = math.Sqrt(sumSq / float64(len(buf)))
	threshold := b.ThresholdMul * rms

	remaining := 0
	var lastGood complex128
	if len(buf) > 0 {
		lastGood = buf[0]
	}
	for i, z := range buf {
		mag := math.Hypot(real(z), imag(z))
		if remaining == 0 && mag > threshold {
			remaining = b.BlankLen
		}
		if remaining > 0 {
			buf[i] = lastGood
			remaining--
		} else {
			lastGood = z
		}
	}
	return rms
}
