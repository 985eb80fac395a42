package condition

import "fmt"

// GatePreset is a named 5-tuple of noise-gate parameters. Implementations
// must store the tuples verbatim — deviations measurably alter gating
// character (§4.4b).
type GatePreset struct {
	AlphaEnv   float64
	AlphaNoise float64
	OpenFactor float64
	CloseFactor float64
	FloorGain  float64
}

// Presets holds the recognized noise-gate preset tuples, keyed by the
// wire-level preset string. open_factor < close_factor is enforced for
// every entry (P3).
var Presets = map[string]GatePreset{
	"balanced":     {AlphaEnv: 0.05, AlphaNoise: 0.002, OpenFactor: 1.4, CloseFactor: 2.0, FloorGain: 0.05},
	"aggressive":   {AlphaEnv: 0.08, AlphaNoise: 0.004, OpenFactor: 2.0, CloseFactor: 3.0, FloorGain: 0.01},
	"weak-signal":  {AlphaEnv: 0.02, AlphaNoise: 0.001, OpenFactor: 1.1, CloseFactor: 1.3, FloorGain: 0.2},
	"smooth":       {AlphaEnv: 0.01, AlphaNoise: 0.0015, OpenFactor: 1.2, CloseFactor: 1.6, FloorGain: 0.15},
	"maximum":      {AlphaEnv: 0.1, AlphaNoise: 0.006, OpenFactor: 2.5, CloseFactor: 4.0, FloorGain: 0.0},
	"cw":           {AlphaEnv: 0.15, AlphaNoise: 0.003, OpenFactor: 1.8, CloseFactor: 2.5, FloorGain: 0.02},
	"am-fm":        {AlphaEnv: 0.03, AlphaNoise: 0.001, OpenFactor: 1.3, CloseFactor: 1.8, FloorGain: 0.1},
}

// PresetNames lists the recognized preset strings in a stable order,
// used by the control channel to validate noise_gate_preset commands.
var PresetNames = []string{"balanced", "aggressive", "weak-signal", "smooth", "maximum", "cw", "am-fm"}

// ValidPreset reports whether name is a recognized preset.
func ValidPreset(name string) bool {
	_, ok := Presets[name]
	return ok
}

const noiseFloorMin = 1e-6

// NoiseGate implements the envelope/noise-floor tracker and hysteresis
// gate of §4.4b.
type NoiseGate struct {
	preset     GatePreset
	presetName string
	envelope   float64
	noiseFloor float64
	gateOpen   bool
}

// NewNoiseGate builds a gate for the named preset. The gate starts
// closed.
func NewNoiseGate(presetName string) (*NoiseGate, error) {
	p, ok := Presets[presetName]
	if !ok {
		return nil, fmt.Errorf("condition: unknown noise gate preset %q", presetName)
	}
	return &NoiseGate{preset: p, presetName: presetName, noiseFloor: noiseFloorMin, gateOpen: false}, nil
}

// SetPreset swaps the active preset tuple without resetting envelope
// state, so a live preset change doesn't reintroduce a transient.
func (g *NoiseGate) SetPreset(presetName string) error {
	p, ok := Presets[presetName]
	if !ok {
		return fmt.Errorf("condition: unknown noise gate preset %q", presetName)
	}
	g.preset = p
	g.presetName = presetName
	return nil
}

// PresetName reports the currently active preset.
func (g *NoiseGate) PresetName() string { return g.presetName }

// Step processes one sample, returning the gated output.
func (g *NoiseGate) Step(x float64) float64 {
	mag := x
	if mag < 0 {
		mag = -mag
	}
	g.envelope += g.preset.AlphaEnv * (mag - g.envelope)

	// Floor tracker freezes during loud passages.
	if g.envelope < 1.5*g.noiseFloor {
		g.noiseFloor += g.preset.AlphaNoise * (g.envelope - g.noiseFloor)
	}
	if g.noiseFloor < noiseFloorMin {
		g.noiseFloor = noiseFloorMin
	}

	ratio := g.envelope / g.noiseFloor

	// Hysteresis is evaluated against the current state so that a
	// strictly monotonic envelope crosses at most one threshold and
	// the gate transitions at most once (P3): closed only tests the
	// (lower) open threshold, open only tests the (higher) close
	// threshold.
	if g.gateOpen {
		if ratio < g.preset.CloseFactor {
			g.gateOpen = false
		}
	} else {
		if ratio > g.preset.OpenFactor {
			g.gateOpen = true
		}
	}

	if g.gateOpen {
		return x
	}
	return x * g.preset.FloorGain
}

// Process gates a buffer in place.
func (g *NoiseGate) Process(buf []float64) {
	for i, x := range buf {
		buf[i] = g.Step(x)
	}
}

// Open reports the current gate state.
func (g *NoiseGate) Open() bool { return g.gateOpen }

// Reset clears envelope/floor/gate state back to defaults without
// forgetting the active preset.
func (g *NoiseGate) Reset() {
	g.envelope = 0
	g.noiseFloor = noiseFloorMin
	g.gateOpen = false
}
