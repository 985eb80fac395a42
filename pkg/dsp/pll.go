package dsp

import "math"

// loopDamping is the fixed PLL damping ratio (ζ = 0.707, slightly
// underdamped) used to derive kp/ki from the loop bandwidth (§4.3).
const loopDamping = 0.707

// loopBandwidthHz is the fixed SAM/C-QUAM loop bandwidth.
const loopBandwidthHz = 50.0

// magTrackAlpha is the magnitude-tracker smoothing coefficient.
const magTrackAlpha = 0.01

// magTrackFloor is the minimum magnitude below which the tracker is not
// updated, avoiding division blow-up on near-silent input.
const magTrackFloor = 1e-4

// dcMonoCoeff and dcStereoCoeff are the DC-blocker coefficients for the
// mono and stereo output paths. Both are 0.999 in the current
// calibration (identical but independently selectable, per §3).
const (
	dcMonoCoeff   = 0.999
	dcStereoCoeff = 0.999
)

// antiWindupLimit bounds the stereo-mode PI integrator (P2).
const antiWindupLimit = math.Pi / 4

// dcBlockerState is a single first-order DC-blocking filter: y[n] =
// x[n] - x[n-1] + coeff*y[n-1].
type dcBlockerState struct {
	coeff  float64
	prevX  float64
	prevY  float64
}

func (d *dcBlockerState) step(x float64) float64 {
	y := x - d.prevX + d.coeff*d.prevY
	d.prevX = x
	d.prevY = y
	return y
}

func (d *dcBlockerState) reset() {
	d.prevX = 0
	d.prevY = 0
}

// SamPLL implements the synchronous-AM / C-QUAM carrier-recovery PLL
// (§4.3): an NCO with PI loop filter, a magnitude tracker, and six
// DC-blocker state registers (mono, L, R — two each are unused per
// mode but kept distinct to avoid cross-mode state bleed on toggle).
type SamPLL struct {
	theta float64 // NCO phase, always kept in (-π, π]
	dtheta float64 // nominal frequency offset, 0 for a carrier centered at baseband DC
	kp, ki float64
	acc    float64 // PI integrator

	magAvg float64

	dcMono dcBlockerState
	dcL    dcBlockerState
	dcR    dcBlockerState

	stereo bool
}

// NewSamPLL builds a PLL tuned for the given audio sample rate.
func NewSamPLL(audioRate float64, stereo bool) *SamPLL {
	wn := 2 * math.Pi * loopBandwidthHz / audioRate
	p := &SamPLL{
		kp:     2 * loopDamping * wn,
		ki:     wn * wn,
		magAvg: 1,
		stereo: stereo,
	}
	p.dcMono.coeff = dcMonoCoeff
	p.dcL.coeff = dcStereoCoeff
	p.dcR.coeff = dcStereoCoeff
	return p
}

// Reset clears theta, acc, the magnitude tracker, and all six DC state
// registers, per §4.3's Reset operation.
func (p *SamPLL) Reset() {
	p.theta = 0
	p.acc = 0
	p.magAvg = 1
	p.dcMono.reset()
	p.dcL.reset()
	p.dcR.reset()
}

// wrap keeps theta in (-π, π] (P1).
func wrapPhase(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

// stepCore runs the shared NCO/phase-detector/loop-filter machinery
// (§4.3 steps 1-6) and returns the normalized, derotated (Ir, Qr) pair
// scaled back up by mag_avg, ready for mono or stereo output formation.
func (p *SamPLL) stepCore(i, q float64) (ir, qr float64) {
	mag := math.Hypot(i, q)
	if mag > magTrackFloor {
		p.magAvg = (1-magTrackAlpha)*p.magAvg + magTrackAlpha*mag
	}
	if p.magAvg <= 0 {
		p.magAvg = magTrackFloor
	}

	ni, nq := i/p.magAvg, q/p.magAvg

	// Rotate by -theta.
	ct, st := math.Cos(-p.theta), math.Sin(-p.theta)
	ir = ni*ct - nq*st
	qr = ni*st + nq*ct

	e := math.Atan2(qr, ir)
	p.acc += p.ki * e
	if p.stereo {
		if p.acc > antiWindupLimit {
			p.acc = antiWindupLimit
		} else if p.acc < -antiWindupLimit {
			p.acc = -antiWindupLimit
		}
	}
	u := p.kp*e + p.acc

	p.theta = wrapPhase(p.theta + p.dtheta + u)

	return ir * p.magAvg, qr * p.magAvg
}

// Step runs one sample of mono SAM demodulation, returning the
// DC-blocked product-detected output.
func (p *SamPLL) Step(i, q float64) float64 {
	ir, _ := p.stepCore(i, q)
	return p.dcMono.step(ir)
}

// StepCQUAM runs one sample of C-QUAM stereo demodulation. The
// polarity flip on diff is load-bearing (§4.3): omitting it causes the
// two channels to fight and produces audible level pumping.
func (p *SamPLL) StepCQUAM(i, q float64) (l, r float64) {
	ir, qr := p.stepCore(i, q)
	sum := ir
	diff := -qr
	l = p.dcL.step(0.5 * (sum + diff))
	r = p.dcR.step(0.5 * (sum - diff))
	return l, r
}

// Theta exposes the current NCO phase, for tests verifying P1.
func (p *SamPLL) Theta() float64 { return p.theta }

// Acc exposes the current PI integrator, for tests verifying P2.
func (p *SamPLL) Acc() float64 { return p.acc }
