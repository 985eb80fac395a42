package condition

import "math"

// monoBoost and stereoPreScale implement §4.4's final quantization
// rules: the mono path boosts by 50% before quantizing, the C-QUAM
// stereo path pre-scales by 0.5x instead.
const (
	monoBoost     = 1.5
	stereoPreScale = 0.5
)

// Chain implements the §4.4 conditioning order: mono path is DC block
// -> (noise gate if enabled) -> (AGC if enabled) -> int16 quantization; C-QUAM
// stereo path bypasses DC/gate/AGC (the PLL already DC-blocks and
// amplitude-normalizes) and instead runs a soft limiter before
// quantization.
type Chain struct {
	DC    *DCBlocker
	Gate  *NoiseGate
	AGC   *AGC
	Limiter *SoftLimiter

	GateEnabled bool
	AGCEnabled  bool
}

// NewChain builds a conditioning chain for the given sample rate.
func NewChain(sampleRate float64, gatePreset string) (*Chain, error) {
	gate, err := NewNoiseGate(gatePreset)
	if err != nil {
		return nil, err
	}
	return &Chain{
		DC:      NewDCBlocker(0.995),
		Gate:    gate,
		AGC:     NewAGC(sampleRate, 0.25, 500),
		Limiter: NewSoftLimiter(0.85),
	}, nil
}

// ProcessMono runs the mono conditioning path and quantizes to
// interleaved int16 (here, single-channel so "interleaved" is simply
// sequential).
func (c *Chain) ProcessMono(buf []float64) []int16 {
	c.DC.Process(buf)
	if c.GateEnabled {
		c.Gate.Process(buf)
	}
	if c.AGCEnabled {
		c.AGC.Process(buf)
	}
	out := make([]int16, len(buf))
	for i, x := range buf {
		out[i] = quantize(x * monoBoost)
	}
	return out
}

// ProcessStereo runs the C-QUAM stereo conditioning path (soft limiter
// only) and interleaves L/R into int16 sample pairs.
func (c *Chain) ProcessStereo(l, r []float64) []int16 {
	out := make([]int16, 2*len(l))
	for i := range l {
		lv := c.Limiter.Step(l[i] * stereoPreScale)
		rv := c.Limiter.Step(r[i] * stereoPreScale)
		out[2*i] = quantize(lv)
		out[2*i+1] = quantize(rv)
	}
	return out
}

func quantize(x float64) int16 {
	v := x * 32767.0
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(math.Round(v))
}

// Reset clears DC/gate/AGC state, used on mode switch.
func (c *Chain) Reset() {
	c.DC.Reset()
	c.Gate.Reset()
	c.AGC.Reset()
}
