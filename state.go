package main

import (
	"sync"

	"github.com/ocupoint/sdraudio/pkg/codec"
)

// ServerState is the process-wide configuration consulted by the
// dispatcher, transport, and control channel. A single instance is
// shared under one RWMutex, following the teacher's serverState
// pattern (state.go) generalized from RF hardware fields to audio
// streaming fields.
type ServerState struct {
	mu sync.RWMutex

	SampleRate   float64 // wideband IQ sample rate feeding the FFT producer, Hz
	AudioRate    float64 // demodulated audio output rate, Hz
	AudioFFTSize int     // per-subscriber IFFT size (audio_fft_size)

	FlacMode    codec.FlacMode
	EncoderKind codec.Kind

	ShowOtherUsers bool // whether window changes broadcast on the events channel (§4.6)
}

// NewServerState builds the default configuration.
func NewServerState() *ServerState {
	return &ServerState{
		SampleRate:     250_000_000,
		AudioRate:      12_000,
		AudioFFTSize:   1024,
		FlacMode:       codec.FlacBalanced,
		EncoderKind:    codec.KindFlac,
		ShowOtherUsers: true,
	}
}

func (s *ServerState) snapshot() ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ServerState{
		SampleRate:     s.SampleRate,
		AudioRate:      s.AudioRate,
		AudioFFTSize:   s.AudioFFTSize,
		FlacMode:       s.FlacMode,
		EncoderKind:    s.EncoderKind,
		ShowOtherUsers: s.ShowOtherUsers,
	}
}

func (s *ServerState) setAudioFFTSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioFFTSize = n
}

var serverState = NewServerState()
