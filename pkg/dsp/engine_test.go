package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func toneFrame(n, specLen, binIdx int, frameNum uint64, real bool) *SpectrumFrame {
	bins := make([]complex128, specLen)
	bins[binIdx] = complex(float64(n)/2, 0) // matches the n/2 magnitude the inverse real FFT expects for a single-bin cosine of unit amplitude
	return &SpectrumFrame{Bins: bins, FrameNum: frameNum, Real: real}
}

// TestEngine_OverlapAddReachesSteadyState checks P5: feeding the same
// stationary spectrum through DemodulateSSB repeatedly must converge to
// a fixed periodic output once the overlap-add history fills, with no
// further seam between successive frames.
func TestEngine_OverlapAddReachesSteadyState(t *testing.T) {
	const n = 64
	e, err := NewEngine(DefaultPlanner, n)
	assert.NoError(t, err)

	frame := toneFrame(n, 40, 4, 10, true) // even frame_num: parity never inverts
	_, err = e.DemodulateSSB(frame, 0, 20, false)
	assert.NoError(t, err)
	second, err := e.DemodulateSSB(frame, 0, 20, false)
	assert.NoError(t, err)
	third, err := e.DemodulateSSB(frame, 0, 20, false)
	assert.NoError(t, err)

	for i := range second {
		assert.InDelta(t, second[i], third[i], 1e-9, "overlap-add output must settle into a fixed steady-state cycle for a stationary input")
	}
}

// TestEngine_ParityInversionFlipsOnOddFrame checks P6: an odd frame_num
// whose audio_mid parity agrees with the input-reality flag negates the
// whole synthesized buffer relative to the non-inverted case (the
// reference implementation inverts on audio_mid-parity == is_real,
// signal.cpp's downconversion parity rule).
func TestEngine_ParityInversionFlipsOnOddFrame(t *testing.T) {
	const n = 64
	l, r := 0, 20 // audio_mid = 10, even -> audio_mid parity is even

	notInverted, err := NewEngine(DefaultPlanner, n)
	assert.NoError(t, err)
	inverted, err := NewEngine(DefaultPlanner, n)
	assert.NoError(t, err)

	evenFrame := toneFrame(n, 40, 4, 10, false) // frame_num even: never inverts
	oddFrame := toneFrame(n, 40, 4, 11, false)  // frame_num odd, audio_mid even, Real false -> parity agrees -> inverts

	out1, err := notInverted.DemodulateSSB(evenFrame, l, r, false)
	assert.NoError(t, err)
	out2, err := inverted.DemodulateSSB(oddFrame, l, r, false)
	assert.NoError(t, err)

	for i := range out1 {
		assert.InDelta(t, out1[i], -out2[i], 1e-9)
	}
}

// TestEngine_ValidateWindowRejectsOutOfRange checks the §4.1 failure
// mode: a window wider than audio_fft_size, or outside the spectrum's
// bounds, is rejected before any plan executes.
func TestEngine_ValidateWindowRejectsOutOfRange(t *testing.T) {
	e, err := NewEngine(DefaultPlanner, 64)
	assert.NoError(t, err)

	assert.ErrorIs(t, e.ValidateWindow(-1, 10, 100), ErrWindowOutOfRange)
	assert.ErrorIs(t, e.ValidateWindow(10, 10, 100), ErrWindowOutOfRange)
	assert.ErrorIs(t, e.ValidateWindow(0, 100, 50), ErrWindowOutOfRange)
	assert.ErrorIs(t, e.ValidateWindow(0, 200, 300), ErrWindowOutOfRange) // wider than audio_fft_size
	assert.NoError(t, e.ValidateWindow(0, 20, 100))
}

// TestEngine_FMDiscriminatorZeroOnSteadyTone checks that a stationary
// complex baseband tone (no frequency offset from center) discriminates
// to a near-zero instantaneous frequency once the overlap-add history
// fills.
func TestEngine_FMDiscriminatorZeroOnSteadyTone(t *testing.T) {
	const n = 64
	e, err := NewEngine(DefaultPlanner, n)
	assert.NoError(t, err)

	specLen := 40
	bins := make([]complex128, specLen)
	center := 10
	bins[center] = complex(float64(n), 0) // DC-centered tone after packCentered
	frame := &SpectrumFrame{Bins: bins, FrameNum: 0, Real: false}

	_, err = e.DemodulateFM(frame, center-5, center+5)
	assert.NoError(t, err)
	out, err := e.DemodulateFM(frame, center-5, center+5)
	assert.NoError(t, err)

	for _, v := range out {
		assert.True(t, math.Abs(v) < math.Pi, "discriminator output must stay within (-pi, pi]")
		assert.InDelta(t, 0.0, v, 1e-6, "a tone at the window center has no frequency offset")
	}
}
