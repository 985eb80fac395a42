package main

import (
	"encoding/json"
	"fmt"

	"github.com/ocupoint/sdraudio/pkg/condition"
	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/registry"
)

// controlEnvelope is the tagged-union wire shape for every inbound
// control-channel message (C8, §6): cmd selects which of the remaining
// fields are meaningful. Field names match the wire protocol literally
// (demodulation, userid, mute, enabled, preset, username, message) so a
// spec-compliant client's documented messages decode directly.
type controlEnvelope struct {
	Cmd string `json:"cmd"`

	L     *int     `json:"l,omitempty"`
	R     *int     `json:"r,omitempty"`
	M     *float64 `json:"m,omitempty"`
	Level *int     `json:"level,omitempty"`

	Demodulation *string `json:"demodulation,omitempty"` // "USB", "LSB", "AM", "AM-S", "FM"

	UserID *string `json:"userid,omitempty"`
	Mute   *bool   `json:"mute,omitempty"`

	Enabled *bool   `json:"enabled,omitempty"` // noise_gate_enable, agc_enable
	Preset  *string `json:"preset,omitempty"`  // noise_gate_preset

	Username string `json:"username,omitempty"` // chat
	Message  string `json:"message,omitempty"`  // chat
}

// controlAck is sent back on the same connection after a control
// message is applied, or in place of the requested effect on rejection.
type controlAck struct {
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ControlRouter dispatches decoded control messages against a
// subscription and the shared registry (C8).
type ControlRouter struct {
	reg    *registry.Registry[*Subscription]
	state  *ServerState
	events *EventsBroadcaster
}

// NewControlRouter builds a router bound to the given registry, server
// state, and events broadcaster.
func NewControlRouter(reg *registry.Registry[*Subscription], state *ServerState, events *EventsBroadcaster) *ControlRouter {
	return &ControlRouter{reg: reg, state: state, events: events}
}

// HandleMessage decodes and applies one control-channel message for
// sub, returning the ack to send back to the client.
func (c *ControlRouter) HandleMessage(sub *Subscription, raw []byte) controlAck {
	var env controlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return controlAck{Cmd: "error", OK: false, Error: ErrInvalidControl.Error()}
	}

	switch env.Cmd {
	case "window":
		return c.handleWindow(sub, env)
	case "demodulation":
		return c.handleDemodulation(sub, env)
	case "userid":
		if env.UserID != nil {
			sub.mu.Lock()
			sub.UserID = *env.UserID
			sub.mu.Unlock()
		}
		return controlAck{Cmd: env.Cmd, OK: true}
	case "mute":
		if env.Mute != nil {
			sub.setMuted(*env.Mute)
		}
		return controlAck{Cmd: env.Cmd, OK: true}
	case "noise_gate_enable":
		if env.Enabled != nil {
			sub.setGateEnabled(*env.Enabled)
		}
		return controlAck{Cmd: env.Cmd, OK: true}
	case "noise_gate_preset":
		if env.Preset == nil || !condition.ValidPreset(*env.Preset) {
			return controlAck{Cmd: env.Cmd, OK: false, Error: "unknown noise gate preset"}
		}
		if err := sub.setGatePreset(*env.Preset); err != nil {
			return controlAck{Cmd: env.Cmd, OK: false, Error: err.Error()}
		}
		return controlAck{Cmd: env.Cmd, OK: true}
	case "agc_enable":
		if env.Enabled != nil {
			sub.setAGCEnabled(*env.Enabled)
		}
		return controlAck{Cmd: env.Cmd, OK: true}
	case "chat":
		// A chat command on the audio control channel is only
		// acknowledged: it is not forwarded anywhere. Chat fan-out
		// happens on /chat, whose handler broadcasts the messages it
		// receives there. Nothing to mutate on the subscription itself.
		return controlAck{Cmd: env.Cmd, OK: true}
	default:
		return controlAck{Cmd: "error", OK: false, Error: fmt.Sprintf("unknown control command %q", env.Cmd)}
	}
}

func (c *ControlRouter) handleWindow(sub *Subscription, env controlEnvelope) controlAck {
	if env.L == nil || env.R == nil {
		return controlAck{Cmd: env.Cmd, OK: false, Error: ErrInvalidControl.Error()}
	}
	spectrumLen := c.state.snapshot().AudioFFTSize * 4 // conservative bound until a real frame size is known
	oldKey, newKey, err := sub.retune(*env.L, *env.R, spectrumLen)
	if err != nil {
		return controlAck{Cmd: env.Cmd, OK: false, Error: err.Error()}
	}
	sub.handle = c.reg.Rekey(oldKey, newKey, sub)
	if c.state.snapshot().ShowOtherUsers {
		snap := sub.snapshot()
		c.events.RecordSignalChange(sub.ID, snap.l, snap.r, float64(snap.l+snap.r)/2)
	}
	return controlAck{Cmd: env.Cmd, OK: true}
}

func (c *ControlRouter) handleDemodulation(sub *Subscription, env controlEnvelope) controlAck {
	if env.Demodulation == nil {
		return controlAck{Cmd: env.Cmd, OK: false, Error: ErrInvalidControl.Error()}
	}
	mode, stereo, ok := dsp.ParseMode(*env.Demodulation)
	if !ok {
		return controlAck{Cmd: env.Cmd, OK: false, Error: fmt.Sprintf("unknown demodulation mode %q", *env.Demodulation)}
	}
	if err := sub.setMode(mode, stereo); err != nil {
		return controlAck{Cmd: env.Cmd, OK: false, Error: err.Error()}
	}
	if c.state.snapshot().ShowOtherUsers {
		snap := sub.snapshot()
		c.events.RecordSignalChange(sub.ID, snap.l, snap.r, float64(snap.l+snap.r)/2)
	}
	return controlAck{Cmd: env.Cmd, OK: true}
}
