package main

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

// signalChangeTriple is one subscription's [l, m, r] window at the
// moment it last changed, or [-1, -1, -1] on disconnect (§4.6).
type signalChangeTriple [3]float64

var disconnectTriple = signalChangeTriple{-1, -1, -1}

// eventsDigest is the periodic payload broadcast to /events clients
// (§4.6): connection counts and bitrates sampled every second, plus
// every window/mode change (or disconnect) accepted since the last
// tick, keyed by subscription id.
type eventsDigest struct {
	WaterfallClients int                           `json:"waterfall_clients"`
	SignalClients    int                           `json:"signal_clients"`
	SignalChanges    map[string]signalChangeTriple `json:"signal_changes"`
	WaterfallKbits   float64                       `json:"waterfall_kbits"`
	AudioKbits       float64                       `json:"audio_kbits"`
}

// disconnectSentinel is broadcast once to every subscriber immediately
// before the broadcaster stops, signaling "no more events will follow"
// without requiring the client to rely on the websocket close frame
// alone.
var disconnectSentinel = eventsDigest{WaterfallClients: -1, SignalClients: -1}

// EventsBroadcaster ticks once a second, gathers connection/bitrate
// counters, and fans the digest out to every subscribed /events client.
type EventsBroadcaster struct {
	reg     *registry.Registry[*Subscription]
	metrics *telemetry.Registry

	mu      sync.RWMutex
	clients map[*wsClient]bool

	pending map[string]signalChangeTriple
}

// NewEventsBroadcaster builds a broadcaster reading subscriber counts
// from reg and bitrate gauges from metrics.
func NewEventsBroadcaster(reg *registry.Registry[*Subscription], metrics *telemetry.Registry) *EventsBroadcaster {
	return &EventsBroadcaster{
		reg:     reg,
		metrics: metrics,
		clients: make(map[*wsClient]bool),
		pending: make(map[string]signalChangeTriple),
	}
}

// Subscribe registers client to receive future digests and returns an
// unsubscribe function.
func (e *EventsBroadcaster) Subscribe(client *wsClient) func() {
	e.mu.Lock()
	e.clients[client] = true
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.clients, client)
		e.mu.Unlock()
	}
}

// RecordSignalChange records sub's new window for the next digest; the
// control router calls this on every accepted window or demodulation
// change when show_other_users is on (§4.6).
func (e *EventsBroadcaster) RecordSignalChange(id string, l, r int, mid float64) {
	e.mu.Lock()
	e.pending[id] = signalChangeTriple{float64(l), mid, float64(r)}
	e.mu.Unlock()
}

// RecordDisconnect records the [-1,-1,-1] sentinel for id, reported in
// the next digest, then it is not carried forward.
func (e *EventsBroadcaster) RecordDisconnect(id string) {
	e.mu.Lock()
	e.pending[id] = disconnectTriple
	e.mu.Unlock()
}

// Run ticks once a second until stop is closed, broadcasting a digest
// each time, and sends the disconnect sentinel to every client before
// returning.
func (e *EventsBroadcaster) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			e.broadcast(disconnectSentinel)
			return
		case <-ticker.C:
			e.broadcast(e.snapshot())
		}
	}
}

func (e *EventsBroadcaster) snapshot() eventsDigest {
	e.mu.Lock()
	changes := e.pending
	e.pending = make(map[string]signalChangeTriple)
	e.mu.Unlock()
	return eventsDigest{
		WaterfallClients: int(testutil.ToFloat64(e.metrics.WaterfallClients)),
		SignalClients:    e.reg.Len(),
		SignalChanges:    changes,
		WaterfallKbits:   testutil.ToFloat64(e.metrics.WaterfallKbits),
		AudioKbits:       testutil.ToFloat64(e.metrics.AudioKbits),
	}
}

func (e *EventsBroadcaster) broadcast(digest eventsDigest) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for client := range e.clients {
		select {
		case client.send <- digest:
		default:
		}
	}
}
