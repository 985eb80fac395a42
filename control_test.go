package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/ocupoint/sdraudio/pkg/codec"
	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

func newTestControlRouter(t *testing.T) (*ControlRouter, *Subscription) {
	t.Helper()
	sub, err := NewSubscription("user-1", 0, 20, dsp.ModeUSB, false, 12000, 64, "balanced", codec.KindOpus, codec.FlacUltraLowLatency)
	assert.NoError(t, err)

	reg := registry.New[*Subscription]()
	reg.Insert(registry.Key{L: sub.L, R: sub.R}, sub)
	state := NewServerState()
	metrics := telemetry.NewRegistry(prometheus.NewRegistry())
	events := NewEventsBroadcaster(reg, metrics)
	return NewControlRouter(reg, state, events), sub
}

func TestControlRouter_InvalidJSONRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte("not json"))
	assert.False(t, ack.OK)
	assert.Equal(t, "error", ack.Cmd)
}

func TestControlRouter_UnknownCmdRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"bogus"}`))
	assert.False(t, ack.OK)
}

func TestControlRouter_WindowRetunesAndRekeys(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"window","l":5,"r":30}`))
	assert.True(t, ack.OK)
	assert.Equal(t, 5, sub.snapshot().l)
	assert.Equal(t, 30, sub.snapshot().r)
}

func TestControlRouter_WindowMissingFieldsRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"window","l":5}`))
	assert.False(t, ack.OK)
}

func TestControlRouter_DemodulationUnknownModeRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"demodulation","demodulation":"XYZ"}`))
	assert.False(t, ack.OK)
}

func TestControlRouter_DemodulationAppliesMode(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"demodulation","demodulation":"AM-S"}`))
	assert.True(t, ack.OK)
	snap := sub.snapshot()
	assert.Equal(t, dsp.ModeAM, snap.mode)
	assert.True(t, snap.stereo)
}

// TestControlRouter_DemodulationRaceRejected exercises end-to-end
// scenario 5 through the control-channel entry point: a second mode
// switch inside the debounce window is rejected with an ack, not a
// silent drop.
func TestControlRouter_DemodulationRaceRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	first := router.HandleMessage(sub, []byte(`{"cmd":"demodulation","demodulation":"AM"}`))
	assert.True(t, first.OK)

	second := router.HandleMessage(sub, []byte(`{"cmd":"demodulation","demodulation":"FM"}`))
	assert.False(t, second.OK)
	assert.Equal(t, dsp.ModeAM, sub.snapshot().mode)
}

func TestControlRouter_NoiseGatePresetUnknownRejected(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"noise_gate_preset","preset":"not-a-preset"}`))
	assert.False(t, ack.OK)
}

// TestControlRouter_MuteTogglesSubscription exercises the maintainer's
// cited documented wire shape verbatim: {"cmd":"mute","mute":true}.
func TestControlRouter_MuteTogglesSubscription(t *testing.T) {
	router, sub := newTestControlRouter(t)
	ack := router.HandleMessage(sub, []byte(`{"cmd":"mute","mute":true}`))
	assert.True(t, ack.OK)
	assert.True(t, sub.snapshot().muted)
}
