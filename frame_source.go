package main

import (
	"context"

	"github.com/ocupoint/sdraudio/pkg/dsp"
)

// SpectrumFrameSource is the boundary to the external RF front-end /
// wideband FFT producer (§2, collaborator boundary). Implementations
// publish one *dsp.SpectrumFrame per dispatch cycle on the returned
// channel, closing it when the source is exhausted or ctx is canceled.
type SpectrumFrameSource interface {
	Frames(ctx context.Context) <-chan *dsp.SpectrumFrame
}
