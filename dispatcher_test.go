package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/ocupoint/sdraudio/pkg/codec"
	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/obslog"
	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

// oneShotSource yields a fixed slice of frames, then closes.
type oneShotSource struct {
	frames []*dsp.SpectrumFrame
}

func (o *oneShotSource) Frames(ctx context.Context) <-chan *dsp.SpectrumFrame {
	ch := make(chan *dsp.SpectrumFrame, len(o.frames))
	for _, f := range o.frames {
		ch <- f
	}
	close(ch)
	return ch
}

func newTestDispatcher(t *testing.T, source SpectrumFrameSource) (*Dispatcher, *registry.Registry[*Subscription]) {
	t.Helper()
	reg := registry.New[*Subscription]()
	state := NewServerState()
	metrics := telemetry.NewRegistry(prometheus.NewRegistry())
	log := obslog.New("", "error")
	return NewDispatcher(reg, source, state, metrics, log, nil), reg
}

func testFrame(specLen int, frameNum uint64) *dsp.SpectrumFrame {
	bins := make([]complex128, specLen)
	bins[4] = complex(1, 0)
	return &dsp.SpectrumFrame{Bins: bins, FrameNum: frameNum, Real: true}
}

// TestDispatcher_DeliversAudioToSubscriber checks the end-to-end fan-out
// path: a registered subscription receives an encoded packet on its
// send channel once enough dispatch cycles accumulate a full 20ms Opus
// frame (audio_fft_size/2 = 32 samples per cycle, 240 needed at 12kHz).
func TestDispatcher_DeliversAudioToSubscriber(t *testing.T) {
	sub, err := NewSubscription("user-1", 0, 20, dsp.ModeUSB, false, 12000, 64, "balanced", codec.KindOpus, codec.FlacUltraLowLatency)
	assert.NoError(t, err)
	sub.setMuted(false)

	d, reg := newTestDispatcher(t, &oneShotSource{})
	reg.Insert(registry.Key{L: 0, R: 20}, sub)

	for i := uint64(0); i < 8; i++ {
		d.dispatchFrame(context.Background(), testFrame(40, i))
	}

	select {
	case <-sub.send:
	case <-time.After(time.Second):
		t.Fatal("expected an encoded packet on the subscription's send channel")
	}
}

// TestDispatcher_MutedSubscriberReceivesNothing checks that a muted
// subscription's demodulated audio never reaches the encoder or send
// channel.
func TestDispatcher_MutedSubscriberReceivesNothing(t *testing.T) {
	sub, err := NewSubscription("user-1", 0, 20, dsp.ModeUSB, false, 12000, 64, "balanced", codec.KindOpus, codec.FlacUltraLowLatency)
	assert.NoError(t, err)
	sub.setMuted(true)

	source := &oneShotSource{frames: []*dsp.SpectrumFrame{testFrame(40, 0)}}
	d, reg := newTestDispatcher(t, source)
	reg.Insert(registry.Key{L: 0, R: 20}, sub)

	d.dispatchFrame(context.Background(), source.frames[0])

	select {
	case <-sub.send:
		t.Fatal("a muted subscription must not receive any packets")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestDispatcher_ChannelMismatchDropsFrameInsteadOfMisencoding exercises
// the mode-switch-race guard directly: when a subscription's
// encChannels field has been forced out of sync with the channel count
// demodulate() returns, processOne drops the frame rather than handing
// mismatched PCM to the encoder.
func TestDispatcher_ChannelMismatchDropsFrameInsteadOfMisencoding(t *testing.T) {
	sub, err := NewSubscription("user-1", 0, 20, dsp.ModeAM, true, 12000, 64, "balanced", codec.KindOpus, codec.FlacUltraLowLatency)
	assert.NoError(t, err)
	sub.setMuted(false)
	assert.Equal(t, 2, sub.encChannels)

	sub.mu.Lock()
	sub.encChannels = 1 // simulate a race: encoder already swapped to mono, demodulate() still sees stereo
	sub.mu.Unlock()

	source := &oneShotSource{frames: []*dsp.SpectrumFrame{testFrame(40, 0)}}
	d, reg := newTestDispatcher(t, source)
	reg.Insert(registry.Key{L: 0, R: 20}, sub)

	d.dispatchFrame(context.Background(), source.frames[0])

	select {
	case <-sub.send:
		t.Fatal("a channel-count mismatch must drop the frame, not encode it")
	case <-time.After(50 * time.Millisecond):
	}
}
