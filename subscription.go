package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ocupoint/sdraudio/pkg/codec"
	"github.com/ocupoint/sdraudio/pkg/condition"
	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/registry"
)

// modeDebounce is the minimum interval between accepted demodulation
// mode switches for a single subscription (§4.8, C8).
const modeDebounce = 100 * time.Millisecond

// Subscription is one client's audio demodulation pipeline: the tuning
// window, the demodulation engine, the conditioning chain, and the
// encoder producing wire packets. One Subscription is owned by exactly
// one dispatch task per frame; the mutex only guards fields the control
// channel mutates concurrently with dispatch (§4.6, §5).
type Subscription struct {
	ID     string
	UserID string

	mu sync.Mutex

	L, R     int // current tuning window, bins
	Mode     dsp.Mode
	Stereo   bool // AM-S
	Muted    bool
	GateOn   bool
	AGCOn    bool
	GatePreset string

	lastModeSwitch time.Time

	engine   *dsp.Engine
	pll      *dsp.SamPLL
	blanker  *condition.Blanker
	chain    *condition.Chain
	encoder  codec.Encoder

	// encChannels is the channel count the current encoder was built
	// for. setMode recreates the encoder when a mode switch changes
	// this (mono<->stereo AM-S toggle, §4.5); processOne drops any
	// frame whose demodulated channel count no longer matches rather
	// than hand mismatched PCM to the wrong encoder.
	encChannels int
	audioRate   float64
	encKind     codec.Kind
	flacMode    codec.FlacMode

	handle *registry.Pair[*Subscription]

	send chan interface{} // outbound queue drained by the transport write pump; []byte for binary audio, anything else for JSON

	// throttle and pendingBytes implement §4.7's adaptive backpressure
	// ladder: pendingBytes tracks bytes handed to send but not yet
	// written to the socket, updated by the transport's onSent callback.
	throttle     *ThrottleState
	pendingBytes atomic.Int64

	frameNum uint64
}

// bufferedBytes reports the current outbound-buffer estimate used by
// the throttle ladder.
func (s *Subscription) bufferedBytes() int {
	return int(s.pendingBytes.Load())
}

// enqueueAudio admits raw against the throttle ladder and, if admitted,
// accounts for it and attempts delivery without blocking. It reports
// whether the packet was sent.
func (s *Subscription) enqueueAudio(frameNum uint64, raw []byte, now time.Time) bool {
	if !s.throttle.Admit(frameNum, s.bufferedBytes(), now) {
		return false
	}
	s.pendingBytes.Add(int64(len(raw)))
	select {
	case s.send <- raw:
		return true
	default:
		s.pendingBytes.Add(-int64(len(raw)))
		return false
	}
}

// NewSubscription builds a subscription tuned to [l, r) with the given
// initial mode, wired to the given audio rate and FFT size.
func NewSubscription(userID string, l, r int, mode dsp.Mode, stereo bool, audioRate float64, audioFFTSize int, gatePreset string, encKind codec.Kind, flacMode codec.FlacMode) (*Subscription, error) {
	engine, err := dsp.NewEngine(dsp.DefaultPlanner, audioFFTSize)
	if err != nil {
		return nil, err
	}
	chain, err := condition.NewChain(audioRate, gatePreset)
	if err != nil {
		return nil, err
	}
	channels := 1
	if mode == dsp.ModeAM && stereo {
		channels = 2
	}
	enc, err := codec.New(encKind, channels, int(audioRate), flacMode)
	if err != nil {
		return nil, err
	}

	s := &Subscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		L:          l,
		R:          r,
		Mode:       mode,
		Stereo:     stereo,
		GateOn:     true,
		AGCOn:      true,
		GatePreset: gatePreset,
		engine:     engine,
		pll:        dsp.NewSamPLL(audioRate, stereo),
		blanker:    condition.NewBlanker(),
		chain:       chain,
		encoder:     enc,
		encChannels: channels,
		audioRate:   audioRate,
		encKind:     encKind,
		flacMode:    flacMode,
		send:        make(chan interface{}, 256),
		throttle:    NewThrottleState(StreamAudio),
	}
	if mode == dsp.ModeAM {
		chain.AGC.ConfigureForAM()
	}
	return s, nil
}

// audioMid reports the window center used for §4.1's parity rule.
func (s *Subscription) audioMid() float64 {
	return float64(s.L+s.R) / 2
}

// retune validates and applies a new window under lock, returning the
// registry key change the caller must apply via registry.Rekey.
func (s *Subscription) retune(l, r int, spectrumLen int) (oldKey, newKey registry.Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.ValidateWindow(l, r, spectrumLen); err != nil {
		return registry.Key{}, registry.Key{}, err
	}
	oldKey = registry.Key{L: s.L, R: s.R}
	s.L, s.R = l, r
	newKey = registry.Key{L: l, R: r}
	return oldKey, newKey, nil
}

// setMode applies a debounced demodulation mode switch (C8, §4.8). It
// returns ErrModeSwitchRace if called again within modeDebounce of the
// last accepted switch.
func (s *Subscription) setMode(mode dsp.Mode, stereo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastModeSwitch) < modeDebounce {
		return ErrModeSwitchRace
	}
	s.Mode = mode
	s.Stereo = stereo
	s.lastModeSwitch = time.Now()
	s.chain.Reset()
	s.pll.Reset()
	if mode == dsp.ModeAM {
		s.chain.AGC.ConfigureForAM()
	} else {
		s.chain.AGC.ConfigureForSSB()
	}

	wantChannels := 1
	if mode == dsp.ModeAM && stereo {
		wantChannels = 2
	}
	if wantChannels != s.encChannels {
		if _, err := s.encoder.Finish(); err != nil {
			return err
		}
		enc, err := codec.New(s.encKind, wantChannels, int(s.audioRate), s.flacMode)
		if err != nil {
			return err
		}
		s.encoder = enc
		s.encChannels = wantChannels
	}
	return nil
}

func (s *Subscription) setMuted(m bool) {
	s.mu.Lock()
	s.Muted = m
	s.mu.Unlock()
}

func (s *Subscription) setGateEnabled(on bool) {
	s.mu.Lock()
	s.GateOn = on
	s.chain.GateEnabled = on
	s.mu.Unlock()
}

func (s *Subscription) setAGCEnabled(on bool) {
	s.mu.Lock()
	s.AGCOn = on
	s.chain.AGCEnabled = on
	s.mu.Unlock()
}

func (s *Subscription) setGatePreset(preset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chain.Gate.SetPreset(preset); err != nil {
		return err
	}
	s.GatePreset = preset
	return nil
}

// snapshot captures the window/mode fields the dispatcher needs without
// holding the lock across a demodulation call.
type subSnapshot struct {
	l, r     int
	mode     dsp.Mode
	stereo   bool
	muted    bool
}

func (s *Subscription) snapshot() subSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subSnapshot{l: s.L, r: s.R, mode: s.Mode, stereo: s.Stereo, muted: s.Muted}
}

// close flushes the encoder and releases DSP resources. Safe to call
// once per subscription, on unsubscribe.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pkts, err := s.encoder.Finish(); err == nil {
		for _, p := range pkts {
			_ = p // final packets are best-effort; the transport is already tearing down
		}
	}
	close(s.send)
}

// demodulate runs one frame through this subscription's demodulation
// engine, impulse blanker (AM only), carrier-recovery PLL (AM only),
// and conditioning chain, returning interleaved int16 PCM ready for the
// encoder plus a power estimate for the wire envelope's pwr field.
func (s *Subscription) demodulate(frame *dsp.SpectrumFrame, audioRate float64) (pcm []int16, pwr float64, channels int, err error) {
	s.mu.Lock()
	l, r, mode, stereo := s.L, s.R, s.Mode, s.Stereo
	s.mu.Unlock()

	switch mode {
	case dsp.ModeUSB, dsp.ModeLSB:
		audio, err := s.engine.DemodulateSSB(frame, l, r, mode == dsp.ModeLSB)
		if err != nil {
			return nil, 0, 0, err
		}
		pwr = rms(audio)
		return s.chain.ProcessMono(audio), pwr, 1, nil

	case dsp.ModeFM:
		audio, err := s.engine.DemodulateFM(frame, l, r)
		if err != nil {
			return nil, 0, 0, err
		}
		pwr = rms(audio)
		return s.chain.ProcessMono(audio), pwr, 1, nil

	case dsp.ModeAM:
		baseband, carrier, err := s.engine.DemodulateAMBaseband(frame, l, r, audioRate)
		if err != nil {
			return nil, 0, 0, err
		}
		s.blanker.Process(baseband)
		pwr = s.blanker.Process(carrier)

		if stereo {
			left := make([]float64, len(baseband))
			right := make([]float64, len(baseband))
			for i, z := range baseband {
				left[i], right[i] = s.pll.StepCQUAM(real(z), imag(z))
			}
			return s.chain.ProcessStereo(left, right), pwr, 2, nil
		}

		mono := make([]float64, len(baseband))
		for i, z := range baseband {
			mono[i] = s.pll.Step(real(z), imag(z))
		}
		return s.chain.ProcessMono(mono), pwr, 1, nil

	default:
		return nil, 0, 0, ErrInvalidControl
	}
}

// encoderMetadata builds the per-packet metadata attached before the
// next ProcessSamples call (§6). Caller holds s.mu.
func (s *Subscription) encoderMetadata(frameNum uint64, pwr float64) codec.Metadata {
	return codec.Metadata{
		FrameNum: frameNum,
		L:        int32(s.L),
		R:        int32(s.R),
		M:        s.audioMid(),
		Pwr:      pwr,
	}
}
