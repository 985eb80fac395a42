package main

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/obslog"
	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

// Dispatcher fans each incoming SpectrumFrame out to every subscribed
// client, bounded to runtime.NumCPU() concurrent demodulation tasks via
// an errgroup barrier per frame (§4.7, §5 "at most one outstanding task
// per subscription").
type Dispatcher struct {
	reg       *registry.Registry[*Subscription]
	source    SpectrumFrameSource
	state     *ServerState
	metrics   *telemetry.Registry
	log       *obslog.Logger
	waterfall *WaterfallBroadcaster
	workers   int
}

// NewDispatcher builds a dispatcher bounded to runtime.NumCPU() workers.
// waterfall may be nil, in which case no waterfall frames are published.
func NewDispatcher(reg *registry.Registry[*Subscription], source SpectrumFrameSource, state *ServerState, metrics *telemetry.Registry, log *obslog.Logger, waterfall *WaterfallBroadcaster) *Dispatcher {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{reg: reg, source: source, state: state, metrics: metrics, log: log, waterfall: waterfall, workers: workers}
}

// Run consumes frames from the source until ctx is canceled or the
// source closes its channel.
func (d *Dispatcher) Run(ctx context.Context) error {
	for frame := range d.source.Frames(ctx) {
		d.dispatchFrame(ctx, frame)
	}
	return ctx.Err()
}

// dispatchFrame runs one fan-out-and-barrier cycle: every live
// subscription is demodulated concurrently, and the cycle does not
// advance to the next frame until all of them finish (P5's ordering
// guarantee relies on this).
func (d *Dispatcher) dispatchFrame(ctx context.Context, frame *dsp.SpectrumFrame) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	audioRate := d.state.snapshot().AudioRate

	d.reg.Walk(func(key registry.Key, sub *Subscription) bool {
		sub := sub
		g.Go(func() error {
			d.processOne(frame, sub, audioRate)
			return nil
		})
		return true
	})
	_ = g.Wait()

	if d.waterfall != nil {
		d.waterfall.Publish(frame)
	}
}

// processOne demodulates, conditions, encodes, and enqueues one
// subscriber's audio for the given frame. Errors are logged and
// counted, never propagated — one subscriber's failure must not stall
// the frame for anyone else (§4.1 failure mode, §7).
func (d *Dispatcher) processOne(frame *dsp.SpectrumFrame, sub *Subscription, audioRate float64) {
	snap := sub.snapshot()

	pcm, pwr, channels, err := sub.demodulate(frame, audioRate)
	if err != nil {
		d.metrics.FramesDropped.WithLabelValues("demod_error").Inc()
		d.log.Warn("demodulation failed", "subscription", sub.ID, "error", err)
		return
	}
	if snap.muted {
		return
	}

	sub.mu.Lock()
	if sub.encChannels != channels {
		// A mode switch changed the channel count between demodulation
		// and encoding; rather than hand mismatched PCM to the new
		// encoder, drop this one frame (§4.5).
		sub.mu.Unlock()
		d.metrics.FramesDropped.WithLabelValues("mode_switch_race").Inc()
		return
	}
	sub.frameNum++
	sub.encoder.SetMetadata(sub.encoderMetadata(frame.FrameNum, pwr))
	packets, err := sub.encoder.ProcessSamples(pcm)
	sub.mu.Unlock()
	if err != nil {
		d.metrics.FramesDropped.WithLabelValues("encode_error").Inc()
		d.log.Warn("encode failed", "subscription", sub.ID, "error", err)
		return
	}

	now := time.Now()
	for _, pkt := range packets {
		raw, err := cbor.Marshal(pkt)
		if err != nil {
			d.metrics.FramesDropped.WithLabelValues("cbor_error").Inc()
			continue
		}
		if !sub.enqueueAudio(frame.FrameNum, raw, now) {
			d.metrics.FramesDropped.WithLabelValues("throttled").Inc()
			continue
		}
		d.metrics.FramesSent.WithLabelValues("audio").Inc()
		d.metrics.BytesSentTotal.Add(float64(len(raw)))
	}
}

func rms(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}
