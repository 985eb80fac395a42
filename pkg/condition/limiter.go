package condition

import "math"

// SoftLimiter applies a tanh-based soft clip above a knee so the
// C-QUAM stereo path (which bypasses DC/gate/AGC) cannot overshoot the
// int16 range on transients.
type SoftLimiter struct {
	Knee float64
}

// NewSoftLimiter builds a limiter with the given knee (linear up to
// Knee, soft-saturating beyond).
func NewSoftLimiter(knee float64) *SoftLimiter {
	return &SoftLimiter{Knee: knee}
}

// Step limits one sample.
func (s *SoftLimiter) Step(x float64) float64 {
	if x >= 0 {
		if x <= s.Knee {
			return x
		}
		return s.Knee + (1-s.Knee)*math.Tanh((x-s.Knee)/(1-s.Knee))
	}
	if x >= -s.Knee {
		return x
	}
	return -(s.Knee + (1-s.Knee)*math.Tanh((-x-s.Knee)/(1-s.Knee)))
}

// Process limits a buffer in place.
func (s *SoftLimiter) Process(buf []float64) {
	for i, x := range buf {
		buf[i] = s.Step(x)
	}
}
