package main

import (
	"math/cmplx"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/fxamacker/cbor/v2"

	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

func newTestWaterfallBroadcaster() *WaterfallBroadcaster {
	metrics := telemetry.NewRegistry(prometheus.NewRegistry())
	return NewWaterfallBroadcaster(metrics, 4)
}

// TestDecimateMagnitude_KeepsEveryFactorthBin checks the waterfall
// downsampling used ahead of §4.6's decimated payload.
func TestDecimateMagnitude_KeepsEveryFactorthBin(t *testing.T) {
	bins := make([]complex128, 16)
	for i := range bins {
		bins[i] = complex(float64(i), 0)
	}
	frame := &dsp.SpectrumFrame{Bins: bins}

	out := decimateMagnitude(frame, 4)
	assert.Len(t, out, 4)
	for i, v := range out {
		assert.InDelta(t, float32(cmplx.Abs(bins[i*4])), v, 1e-6)
	}
}

// TestWaterfallBroadcaster_PublishDeliversToSubscribedClient checks the
// end-to-end fan-out path: Subscribe registers a client, Publish
// CBOR-encodes the decimated frame and delivers it on the client's send
// channel when unthrottled.
func TestWaterfallBroadcaster_PublishDeliversToSubscribedClient(t *testing.T) {
	w := newTestWaterfallBroadcaster()
	client := &wsClient{send: make(chan interface{}, 1)}
	_, unsub := w.Subscribe(client)
	defer unsub()

	bins := make([]complex128, 8)
	bins[0] = complex(1, 0)
	frame := &dsp.SpectrumFrame{Bins: bins, FrameNum: 1}
	w.Publish(frame)

	select {
	case msg := <-client.send:
		raw, ok := msg.([]byte)
		assert.True(t, ok)
		var pkt waterfallPacket
		assert.NoError(t, cbor.Unmarshal(raw, &pkt))
		assert.EqualValues(t, 1, pkt.FrameNum)
	case <-time.After(time.Second):
		t.Fatal("expected a waterfall packet on the client's send channel")
	}
}

// TestWaterfallBroadcaster_UnsubscribeStopsDelivery checks that a
// client removed via the unsubscribe func no longer receives frames.
func TestWaterfallBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	w := newTestWaterfallBroadcaster()
	client := &wsClient{send: make(chan interface{}, 1)}
	_, unsub := w.Subscribe(client)
	unsub()

	frame := &dsp.SpectrumFrame{Bins: make([]complex128, 8), FrameNum: 1}
	w.Publish(frame)

	select {
	case <-client.send:
		t.Fatal("unsubscribed client must not receive further frames")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestWaterfallBroadcaster_NoSubscribersIsNoop checks Publish is safe to
// call with zero connected clients.
func TestWaterfallBroadcaster_NoSubscribersIsNoop(t *testing.T) {
	w := newTestWaterfallBroadcaster()
	assert.NotPanics(t, func() {
		w.Publish(&dsp.SpectrumFrame{Bins: make([]complex128, 8), FrameNum: 1})
	})
}
