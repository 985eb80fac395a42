package dsp

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Planner serializes inverse-FFT plan construction and destruction
// across the whole process. gonum's fourier.FFT/CmplxFFT values are not
// safe to construct concurrently with the same backing arena in the
// general case, so every subscriber's three plans are built through one
// shared mutex; plan *execution* afterward is independent and safe to
// run in parallel on distinct plans (§5).
type Planner struct {
	mu sync.Mutex
}

// DefaultPlanner is the process-wide FFT planner. There is exactly one
// per process, matching the teacher's single global serverState pattern
// in state.go.
var DefaultPlanner = &Planner{}

// RealIFFTPlan wraps an inverse real FFT: a Hermitian-symmetric
// half-spectrum of length n/2+1 in, n real time samples out. Used for
// USB/LSB synthesis where the output is already real-valued audio.
type RealIFFTPlan struct {
	fft *fourier.FFT
	n   int
}

// CmplxIFFTPlan wraps an inverse complex FFT: n complex bins in, n
// complex time samples out (gonum's Sequence result is unnormalized and
// is divided by n here so callers receive a true inverse transform).
type CmplxIFFTPlan struct {
	fft *fourier.CmplxFFT
	n   int
}

// NewRealIFFTPlan constructs a size-n inverse real FFT plan under the
// shared planner mutex. forbid copy: callers must pass plans by
// pointer, never by value, and must not share one plan across
// subscriptions.
func (p *Planner) NewRealIFFTPlan(n int) (*RealIFFTPlan, error) {
	if n <= 0 || n%2 != 0 {
		return nil, fmt.Errorf("dsp: invalid real IFFT size %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &RealIFFTPlan{fft: fourier.NewFFT(n), n: n}, nil
}

// NewCmplxIFFTPlan constructs a size-n inverse complex FFT plan under
// the shared planner mutex.
func (p *Planner) NewCmplxIFFTPlan(n int) (*CmplxIFFTPlan, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dsp: invalid complex IFFT size %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &CmplxIFFTPlan{fft: fourier.NewCmplxFFT(n), n: n}, nil
}

// Release returns the plan's resources to the planner. gonum's FFT
// types hold no external handles, so Release is a no-op beyond
// preventing reuse; it still takes the planner mutex to mirror the
// RAII destruction path the design notes call for and to keep
// construction/destruction symmetric if a future backend needs it.
func (p *Planner) Release(plan interface{ released() }) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan.released()
}

func (r *RealIFFTPlan) released() {}
func (c *CmplxIFFTPlan) released() {}

// Execute runs the inverse real FFT: half is a Hermitian half-spectrum
// of length n/2+1, dst receives n real samples. gonum's FFT.Sequence is
// unnormalized, so the result is divided by n here to yield a true
// inverse transform.
func (r *RealIFFTPlan) Execute(dst []float64, half []complex128) []float64 {
	out := r.fft.Sequence(dst, half)
	scale := 1 / float64(r.n)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Len reports the real time-domain length of the plan.
func (r *RealIFFTPlan) Len() int { return r.n }

// Execute runs the inverse complex FFT and normalizes by n so the
// result is a true inverse transform (gonum's CmplxFFT.Sequence is
// otherwise unnormalized).
func (c *CmplxIFFTPlan) Execute(dst []complex128, full []complex128) []complex128 {
	out := c.fft.Sequence(dst, full)
	scale := complex(1/float64(c.n), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Len reports the complex time-domain length of the plan.
func (c *CmplxIFFTPlan) Len() int { return c.n }
