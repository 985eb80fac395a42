package condition

import "math"

const agcStages = 5

// AGCProfile holds the mode-dependent tuning for the cascaded AGC:
// AM and SSB differ only in hang time, hang threshold, and release
// slope (§4.4c).
type AGCProfile struct {
	AttackMs      float64
	ReleaseMs     float64
	FastAttackMs  float64
	HangTimeMs    float64
	HangThreshold float64
}

// SSBProfile and AMProfile are the two built-in tuning presets; AM's
// release is an order of magnitude slower than SSB's.
var (
	SSBProfile = AGCProfile{AttackMs: 5, ReleaseMs: 130, FastAttackMs: 3, HangTimeMs: 200, HangThreshold: 0.95}
	AMProfile  = AGCProfile{AttackMs: 5, ReleaseMs: 1300, FastAttackMs: 3, HangTimeMs: 500, HangThreshold: 0.95}
)

type agcStage struct {
	gain        float64
	hangCounter int
	// delayedRelease is stage-0-only: an extra hold path that further
	// delays gain-up after a peak, per §4.4c step 4.
	delayedRelease int
}

// AGC implements the 5-stage cascaded automatic gain control with
// optional look-ahead peak estimation and an optional spectral noise
// blanker (§4.4c, §4.4d).
type AGC struct {
	sampleRate   float64
	desiredLevel float64
	maxGain      float64
	profile      AGCProfile

	fastCoeff    float64
	slowAttack   float64
	slowRelease  float64
	hangSamples  int

	stages [agcStages]agcStage

	lookAhead *lookAheadDeque

	Blanker *SpectralBlanker
}

// NewAGC builds an AGC for the given sample rate and desired output
// level, defaulting to the SSB profile with no look-ahead.
func NewAGC(sampleRate, desiredLevel, maxGain float64) *AGC {
	a := &AGC{sampleRate: sampleRate, desiredLevel: desiredLevel, maxGain: maxGain}
	a.ConfigureForSSB()
	for i := range a.stages {
		a.stages[i].gain = 1
	}
	return a
}

func onePoleCoeff(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 0
	}
	tau := ms / 1000.0
	return math.Exp(-1.0 / (tau * sampleRate))
}

func (a *AGC) applyProfile(p AGCProfile) {
	a.profile = p
	a.fastCoeff = onePoleCoeff(p.FastAttackMs, a.sampleRate)
	a.slowAttack = onePoleCoeff(p.AttackMs, a.sampleRate)
	a.slowRelease = onePoleCoeff(p.ReleaseMs, a.sampleRate)
	a.hangSamples = int(p.HangTimeMs * a.sampleRate / 1000.0)
}

// ConfigureForSSB selects the SSB tuning profile (mode switch calls this).
func (a *AGC) ConfigureForSSB() { a.applyProfile(SSBProfile) }

// ConfigureForAM selects the AM tuning profile.
func (a *AGC) ConfigureForAM() { a.applyProfile(AMProfile) }

// SetLookAhead enables or disables look-ahead peak estimation with the
// given window in milliseconds (0 disables it).
func (a *AGC) SetLookAhead(ms float64) {
	if ms <= 0 {
		a.lookAhead = nil
		return
	}
	size := int(ms * a.sampleRate / 1000.0)
	if size < 1 {
		size = 1
	}
	a.lookAhead = newLookAheadDeque(size)
}

// Reset restores unity gain and clears hang/look-ahead state.
func (a *AGC) Reset() {
	for i := range a.stages {
		a.stages[i] = agcStage{gain: 1}
	}
	if a.lookAhead != nil {
		a.lookAhead.reset()
	}
}

const agcEps = 1e-9
const agcOutputScale = 0.01 // §9(b): max_gain 500 -> ~5x effective, preserved verbatim.

// Step processes one sample through the cascade and returns the
// gain-controlled output, clamped so |output| <= desiredLevel*maxGain*
// agcOutputScale + eps for any bounded input (P4).
func (a *AGC) Step(x float64) float64 {
	var peak float64
	if a.lookAhead != nil {
		peak = a.lookAhead.push(math.Abs(x))
	} else {
		peak = math.Abs(x)
	}

	gStar := a.desiredLevel / (peak + agcEps)
	if gStar > a.maxGain {
		gStar = a.maxGain
	}
	stageDesired := math.Pow(gStar, 1.0/agcStages)

	for i := 0; i < agcStages; i++ {
		st := &a.stages[i]
		if stageDesired < st.gain*a.profile.HangThreshold {
			st.hangCounter = a.hangSamples
		}
		if st.hangCounter > 0 {
			st.hangCounter--
			continue
		}

		fast := st.gain + (1-a.fastCoeff)*(stageDesired-st.gain)
		var slow float64
		if stageDesired < st.gain {
			slow = st.gain + (1-a.slowAttack)*(stageDesired-st.gain)
		} else {
			slow = st.gain + (1-a.slowRelease)*(stageDesired-st.gain)
		}

		next := math.Min(fast, slow)

		if i == 0 && next > st.gain {
			// Stage 0 (RF) additionally delays gain-up releases.
			if st.delayedRelease > 0 {
				st.delayedRelease--
				next = st.gain
			} else {
				st.delayedRelease = int(a.profile.HangTimeMs * a.sampleRate / 4000.0)
			}
		}
		st.gain = next
	}

	total := 1.0
	for i := range a.stages {
		total *= a.stages[i].gain
	}
	if total > a.maxGain {
		total = a.maxGain
	}
	limit := a.desiredLevel * a.maxGain * agcOutputScale
	out := x * total * agcOutputScale
	if out > limit {
		out = limit
	} else if out < -limit {
		out = -limit
	}
	return out
}

// Process runs the cascade over a buffer in place, optionally routing
// through the spectral noise blanker first (§4.4d runs ahead of the
// gain cascade since it operates on blocks, not samples).
func (a *AGC) Process(buf []float64) {
	if a.Blanker != nil && a.Blanker.Enabled() {
		a.Blanker.Process(buf)
	}
	for i, x := range buf {
		buf[i] = a.Step(x)
	}
}

// lookAheadDeque maintains a ring of the last N raw samples and a
// monotonic-max deque over them so Push is O(1) amortized.
type lookAheadDeque struct {
	size int
	ring []float64
	head int
	full bool

	// maxDeque stores (value, ringIndex) pairs in decreasing order of
	// value; the front is always the current window max.
	maxVals []float64
	maxIdx  []int
}

func newLookAheadDeque(size int) *lookAheadDeque {
	return &lookAheadDeque{
		size: size,
		ring: make([]float64, size),
	}
}

func (d *lookAheadDeque) reset() {
	d.head = 0
	d.full = false
	d.maxVals = d.maxVals[:0]
	d.maxIdx = d.maxIdx[:0]
	for i := range d.ring {
		d.ring[i] = 0
	}
}

// push inserts a new raw sample magnitude and returns the current
// window max.
func (d *lookAheadDeque) push(v float64) float64 {
	idx := d.head
	d.ring[idx] = v

	for len(d.maxVals) > 0 && d.maxVals[len(d.maxVals)-1] <= v {
		d.maxVals = d.maxVals[:len(d.maxVals)-1]
		d.maxIdx = d.maxIdx[:len(d.maxIdx)-1]
	}
	d.maxVals = append(d.maxVals, v)
	d.maxIdx = append(d.maxIdx, idx)

	d.head = (idx + 1) % d.size
	if d.head == 0 {
		d.full = true
	}

	// Evict indices that have fallen out of the window. The window
	// covers the last `size` pushes ending at idx.
	for len(d.maxIdx) > 0 && !inWindow(d.maxIdx[0], idx, len(d.maxIdx) == 1) {
		d.maxVals = d.maxVals[1:]
		d.maxIdx = d.maxIdx[1:]
	}

	if len(d.maxVals) == 0 {
		return v
	}
	return d.maxVals[0]
}

// inWindow reports whether the deque entry at ringIdx still lies within
// the window ending at newestIdx. An older entry that carries newestIdx
// is the sample the newest push overwrote (written size pushes ago);
// isNewest marks the entry the newest push appended.
func inWindow(ringIdx, newestIdx int, isNewest bool) bool {
	return isNewest || ringIdx != newestIdx
}
