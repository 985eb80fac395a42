package main

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ocupoint/sdraudio/pkg/dsp"
)

// SynthSource is a synthetic SpectrumFrameSource used when no real RF
// front end is attached, adapted from the teacher's dummy_streamer
// sine-wave generator: instead of synthesizing an IQ time series, it
// synthesizes the wideband spectrum directly, placing a handful of
// carrier tones plus noise across fftSize bins.
type SynthSource struct {
	fftSize    int
	sampleRate float64
	frameEvery time.Duration

	rng *rand.Rand
}

// NewSynthSource builds a generator producing fftSize-bin complex
// spectra at 1/frameEvery Hz.
func NewSynthSource(fftSize int, sampleRate float64, frameEvery time.Duration) *SynthSource {
	return &SynthSource{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		frameEvery: frameEvery,
		rng:        rand.New(rand.NewSource(1)),
	}
}

// Frames implements SpectrumFrameSource.
func (s *SynthSource) Frames(ctx context.Context) <-chan *dsp.SpectrumFrame {
	out := make(chan *dsp.SpectrumFrame, 4)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.frameEvery)
		defer ticker.Stop()
		var frameNum uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := s.synthesize(frameNum)
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
				frameNum++
			}
		}
	}()
	return out
}

// carrierBins places a few fixed synthetic carriers across the band so
// a demo client has something audible to tune across.
var carrierBins = []struct {
	bin  int
	mag  float64
}{
	{512, 40},
	{1536, 25},
	{3000, 60},
}

func (s *SynthSource) synthesize(frameNum uint64) *dsp.SpectrumFrame {
	bins := make([]complex128, s.fftSize)
	t := float64(frameNum) * s.frameEvery.Seconds()
	for _, c := range carrierBins {
		if c.bin >= s.fftSize {
			continue
		}
		phase := 2 * math.Pi * 3.0 * t // slow amplitude wobble for visual interest
		mag := c.mag * (1 + 0.1*math.Sin(phase))
		bins[c.bin] += complex(mag, 0)
	}
	for i := range bins {
		bins[i] += complex(s.rng.NormFloat64(), s.rng.NormFloat64())
	}
	return &dsp.SpectrumFrame{Bins: bins, FrameNum: frameNum, Real: true}
}
