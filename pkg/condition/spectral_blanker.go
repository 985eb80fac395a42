package condition

import (
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	spectralFFTSize  = 2048
	spectralHop      = 1536
	spectralAvgLen   = 32
	spectralThreshold = 6.0
)

// spectralPlanMu serializes FFT plan creation/destruction across all
// SpectralBlanker instances, per §4.4d's thread-safety note. Plan
// *execution* is independent and happens without holding this mutex.
var spectralPlanMu sync.Mutex

// SpectralBlanker implements the optional spectral noise blanker inside
// the AGC (§4.4d): a windowed overlap FFT with a rolling magnitude-
// spectrum average, per-bin attenuation of outliers, and a final
// time-domain blanking pass.
type SpectralBlanker struct {
	enabled atomic.Bool

	fft *fourier.FFT

	window []float64
	hop    int

	avg      [][]float64 // ring of magnitude spectra
	avgSum   []float64
	avgCount int
	avgIdx   int

	inputRing   []float64 // accumulates incoming samples until a full FFT block is available
	outputQueue []float64 // cleaned hop-sized chunks awaiting delivery to callers
}

// NewSpectralBlanker builds a spectral blanker with the §4.4d fixed
// window/hop sizes, disabled by default.
func NewSpectralBlanker() *SpectralBlanker {
	spectralPlanMu.Lock()
	fft := fourier.NewFFT(spectralFFTSize)
	spectralPlanMu.Unlock()

	window := make([]float64, spectralFFTSize)
	for i := range window {
		// Hann window.
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(spectralFFTSize-1))
	}

	binCount := spectralFFTSize/2 + 1
	avg := make([][]float64, spectralAvgLen)
	for i := range avg {
		avg[i] = make([]float64, binCount)
	}

	return &SpectralBlanker{
		fft:    fft,
		window: window,
		hop:    spectralHop,
		avg:    avg,
		avgSum: make([]float64, binCount),
	}
}

// SetEnabled atomically toggles the blanker; the flag is read
// atomically per call to Process, as required by §4.4d.
func (s *SpectralBlanker) SetEnabled(on bool) { s.enabled.Store(on) }

// Enabled reports the current enable flag.
func (s *SpectralBlanker) Enabled() bool { return s.enabled.Load() }

// Process blanks a real-valued buffer in place using overlap-save
// spectral frames: incoming samples accumulate until a full
// spectralFFTSize block is available, each block contributes its first
// hop samples to an output queue, and buf is filled from that queue.
// Output lags input by up to one FFT block; until the queue has caught
// up, samples pass through unblanked rather than blocking the caller.
func (s *SpectralBlanker) Process(buf []float64) {
	if !s.enabled.Load() {
		return
	}

	s.inputRing = append(s.inputRing, buf...)
	for len(s.inputRing) >= spectralFFTSize {
		block := make([]float64, spectralFFTSize)
		copy(block, s.inputRing[:spectralFFTSize])
		s.processBlock(block)
		s.outputQueue = append(s.outputQueue, block[:s.hop]...)
		s.inputRing = s.inputRing[s.hop:]
	}

	n := len(buf)
	if len(s.outputQueue) < n {
		return
	}
	copy(buf, s.outputQueue[:n])
	s.outputQueue = s.outputQueue[n:]
}

func (s *SpectralBlanker) processBlock(block []float64) {
	windowed := make([]float64, spectralFFTSize)
	for i, x := range block {
		windowed[i] = x * s.window[i]
	}

	spec := s.fft.Coefficients(nil, windowed)

	mags := make([]float64, len(spec))
	for k, c := range spec {
		mags[k] = cmplxAbs(c)
	}

	// Rolling average update (32-window ring).
	old := s.avg[s.avgIdx]
	for k := range s.avgSum {
		s.avgSum[k] += mags[k] - old[k]
	}
	copy(old, mags)
	s.avgIdx = (s.avgIdx + 1) % spectralAvgLen
	if s.avgCount < spectralAvgLen {
		s.avgCount++
	}

	denom := float64(s.avgCount)
	if denom == 0 {
		denom = 1
	}

	for k, c := range spec {
		avg := s.avgSum[k] / denom
		ratio := mags[k] / (avg + agcEps)
		if ratio > 1 {
			scale := 1 / math.Sqrt(ratio)
			spec[k] = c * complex(scale, 0)
		}
	}

	cleaned := s.fft.Sequence(nil, spec)
	invScale := 1 / float64(spectralFFTSize)
	for i := range cleaned {
		cleaned[i] *= invScale
	}

	var avgLevel float64
	for _, v := range cleaned {
		avgLevel += math.Abs(v)
	}
	avgLevel /= float64(len(cleaned))

	threshold := spectralThreshold * avgLevel
	for i, v := range cleaned {
		mag := math.Abs(v)
		if mag > threshold && mag > 0 {
			cleaned[i] = v * (threshold / mag)
		}
	}

	copy(block, cleaned)
}

func cmplxAbs(z complex128) float64 { return math.Hypot(real(z), imag(z)) }
