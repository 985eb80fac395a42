package dsp

import (
	"fmt"
	"math"
)

// ErrWindowOutOfRange is returned when a requested (l, r) tuning window
// cannot be satisfied by the engine's fixed IFFT size (§4.1 failure
// mode): the control setter must reject the update before the pipeline
// ever sees an inconsistent tuning.
var ErrWindowOutOfRange = fmt.Errorf("dsp: window out of range for audio_fft_size")

// Engine owns the three inverse-FFT plans and overlap-add scratch state
// for exactly one subscriber (§4.1, §5 "each owns its IFFT plans").
// Engine is not safe for concurrent use by more than one dispatch task
// at a time; the dispatcher guarantees at most one outstanding task per
// subscription.
type Engine struct {
	n int // audio_fft_size

	realPlan     *RealIFFTPlan
	basebandPlan *CmplxIFFTPlan
	carrierPlan  *CmplxIFFTPlan

	halfSpec   []complex128 // len n/2+1, real-IFFT input (USB/LSB)
	fullSpecBB []complex128 // len n, complex-IFFT input (AM/FM baseband)
	fullSpecCr []complex128 // len n, complex-IFFT input (AM carrier reconstruction)

	realOut    []float64
	bbOut      []complex128
	carrierOut []complex128

	prevRealHalf []float64
	prevBBHalf   []complex128

	lastFMSample complex128 // continuity anchor for the FM polar discriminator
}

// NewEngine allocates an Engine of the given audio_fft_size, building
// its three plans through the shared Planner.
func NewEngine(planner *Planner, audioFFTSize int) (*Engine, error) {
	if audioFFTSize <= 0 || audioFFTSize%2 != 0 {
		return nil, fmt.Errorf("dsp: audio_fft_size must be a positive even number, got %d", audioFFTSize)
	}
	realPlan, err := planner.NewRealIFFTPlan(audioFFTSize)
	if err != nil {
		return nil, err
	}
	bbPlan, err := planner.NewCmplxIFFTPlan(audioFFTSize)
	if err != nil {
		return nil, err
	}
	crPlan, err := planner.NewCmplxIFFTPlan(audioFFTSize)
	if err != nil {
		return nil, err
	}
	half := audioFFTSize / 2
	return &Engine{
		n:            audioFFTSize,
		realPlan:     realPlan,
		basebandPlan: bbPlan,
		carrierPlan:  crPlan,
		halfSpec:     make([]complex128, audioFFTSize/2+1),
		fullSpecBB:   make([]complex128, audioFFTSize),
		fullSpecCr:   make([]complex128, audioFFTSize),
		realOut:      make([]float64, audioFFTSize),
		bbOut:        make([]complex128, audioFFTSize),
		carrierOut:   make([]complex128, audioFFTSize),
		prevRealHalf: make([]float64, half),
		prevBBHalf:   make([]complex128, half),
	}, nil
}

// HalfLen returns audio_fft_size/2, the per-frame output length.
func (e *Engine) HalfLen() int { return e.n / 2 }

// ValidateWindow applies §4.1's failure mode: out-of-range l, r, or
// audio_fft_size < r-l rejects the tuning before any state mutates.
func (e *Engine) ValidateWindow(l, r, spectrumLen int) error {
	if l < 0 || r <= l || r > spectrumLen {
		return ErrWindowOutOfRange
	}
	if e.n < r-l {
		return ErrWindowOutOfRange
	}
	return nil
}

func isOdd(n int64) bool { return n%2 != 0 }

// applyParityReal and applyParityCmplx implement §4.1 step 4: when
// frame_num is odd AND the oddness of floor(audio_mid) agrees with the
// input-reality flag (odd and real, or even and complex), the entire
// time-domain buffer is negated (P6).
func applyParityReal(buf []float64, frameNum uint64, audioMid float64, inputReal bool) {
	if !shouldInvert(frameNum, audioMid, inputReal) {
		return
	}
	for i := range buf {
		buf[i] = -buf[i]
	}
}

func applyParityCmplx(buf []complex128, frameNum uint64, audioMid float64, inputReal bool) {
	if !shouldInvert(frameNum, audioMid, inputReal) {
		return
	}
	for i := range buf {
		buf[i] = -buf[i]
	}
}

func shouldInvert(frameNum uint64, audioMid float64, inputReal bool) bool {
	frameOdd := frameNum%2 == 1
	if !frameOdd {
		return false
	}
	audioMidOdd := isOdd(int64(math.Floor(audioMid)))
	return audioMidOdd == inputReal
}

// overlapAddReal performs 50% overlap-add: the new first half is added
// onto the previous stored second half; the new second half is saved
// for next frame. out has length n/2.
func (e *Engine) overlapAddReal(full []float64) []float64 {
	half := e.n / 2
	out := make([]float64, half)
	for i := 0; i < half; i++ {
		out[i] = full[i] + e.prevRealHalf[i]
	}
	copy(e.prevRealHalf, full[half:])
	return out
}

func (e *Engine) overlapAddCmplx(full []complex128) []complex128 {
	half := e.n / 2
	out := make([]complex128, half)
	for i := 0; i < half; i++ {
		out[i] = full[i] + e.prevBBHalf[i]
	}
	copy(e.prevBBHalf, full[half:])
	return out
}

// zeroSpec resets a scratch spectrum buffer to zero in place.
func zeroSpec(buf []complex128) {
	for i := range buf {
		buf[i] = 0
	}
}

// DemodulateSSB implements USB/LSB: spectral copy into the positive
// half (USB) or conjugate-mirrored half (LSB), inverse real FFT, parity
// correction, overlap-add. Returns audio_fft_size/2 real samples.
func (e *Engine) DemodulateSSB(frame *SpectrumFrame, l, r int, lsb bool) ([]float64, error) {
	if err := e.ValidateWindow(l, r, len(frame.Bins)); err != nil {
		return nil, err
	}
	zeroSpec(e.halfSpec)
	w := r - l
	if !lsb {
		for k := 0; k < w; k++ {
			e.halfSpec[k] = frame.Bin(l + k)
		}
	} else {
		for k := 0; k < w; k++ {
			e.halfSpec[k] = cmplxConj(frame.Bin(r - 1 - k))
		}
	}
	full := e.realPlan.Execute(e.realOut, e.halfSpec)
	audioMid := float64(l+r) / 2
	applyParityReal(full, frame.FrameNum, audioMid, frame.Real)
	return e.overlapAddReal(full), nil
}

func cmplxConj(z complex128) complex128 { return complex(real(z), -imag(z)) }

// packCentered places a [l, r) window of the wideband spectrum into a
// complex IFFT input of length n, centered at DC so the inverse
// transform yields an analytic (complex) baseband signal. Positive
// offsets from center land in the low bins, negative offsets wrap to
// the high bins, matching the standard FFT negative-frequency layout.
func packCentered(dst []complex128, frame *SpectrumFrame, l, r int) {
	zeroSpec(dst)
	n := len(dst)
	center := (l + r) / 2
	halfW := r - center
	for off := 0; off < halfW; off++ {
		dst[off] = frame.Bin(center + off)
	}
	for off := 1; off <= center-l; off++ {
		dst[n-off] = frame.Bin(center - off)
	}
}

// DemodulateFM implements the polar discriminator: y[n] = arg(z[n] *
// conj(z[n-1])), where z at the frame boundary is the last complex
// sample carried over from the previous frame.
func (e *Engine) DemodulateFM(frame *SpectrumFrame, l, r int) ([]float64, error) {
	if err := e.ValidateWindow(l, r, len(frame.Bins)); err != nil {
		return nil, err
	}
	packCentered(e.fullSpecBB, frame, l, r)
	full := e.basebandPlan.Execute(e.bbOut, e.fullSpecBB)
	audioMid := float64(l+r) / 2
	applyParityCmplx(full, frame.FrameNum, audioMid, frame.Real)
	baseband := e.overlapAddCmplx(full)

	out := make([]float64, len(baseband))
	prev := e.lastFMSample
	for i, z := range baseband {
		out[i] = cmplxArg(z * cmplxConj(prev))
		prev = z
	}
	e.lastFMSample = prev
	return out, nil
}

func cmplxArg(z complex128) float64 { return math.Atan2(imag(z), real(z)) }

// DemodulateAMBaseband reconstructs the complex baseband signal for AM
// / AM-stereo, plus a narrowband carrier-reference buffer (all bins
// beyond ±500 Hz zeroed) for the impulse blanker and power estimation.
// Both buffers are handed to the caller pre-PLL; SAM_PLL and the
// impulse blanker live outside this package (§4.3, §4.4a).
func (e *Engine) DemodulateAMBaseband(frame *SpectrumFrame, l, r int, audioRate float64) (baseband, carrier []complex128, err error) {
	if err := e.ValidateWindow(l, r, len(frame.Bins)); err != nil {
		return nil, nil, err
	}
	packCentered(e.fullSpecBB, frame, l, r)
	full := e.basebandPlan.Execute(e.bbOut, e.fullSpecBB)
	audioMid := float64(l+r) / 2
	applyParityCmplx(full, frame.FrameNum, audioMid, frame.Real)
	baseband = e.overlapAddCmplx(full)

	// Carrier buffer: same window, low-pass the baseband spectrum to
	// ±500 Hz before the second inverse transform.
	cutoffBins := int(500.0 * float64(e.n) / audioRate)
	zeroSpec(e.fullSpecCr)
	copy(e.fullSpecCr, e.fullSpecBB)
	for i := cutoffBins + 1; i < e.n-cutoffBins; i++ {
		e.fullSpecCr[i] = 0
	}
	crFull := e.carrierPlan.Execute(e.carrierOut, e.fullSpecCr)
	applyParityCmplx(crFull, frame.FrameNum, audioMid, frame.Real)
	half := e.n / 2
	carrier = make([]complex128, half)
	copy(carrier, crFull[:half]) // carrier buffer is diagnostic-only; no overlap-add state needed

	return baseband, carrier, nil
}
