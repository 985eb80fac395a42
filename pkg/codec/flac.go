package codec

import (
	"fmt"
	"os"

	flac "github.com/cocoonlife/goflac"
)

// FlacMode selects the block-size/latency tradeoff of the FLAC
// variant (§4.5).
type FlacMode int

const (
	FlacUltraLowLatency FlacMode = iota // 256-sample block
	FlacBalanced                        // 1024-sample block
	FlacLowBandwidth                    // 4096-sample block
)

// BlockSize returns the configured FLAC block size for the mode.
func (m FlacMode) BlockSize() int {
	switch m {
	case FlacUltraLowLatency:
		return 256
	case FlacLowBandwidth:
		return 4096
	default:
		return 1024
	}
}

// ParseFlacMode maps the FLAC_MODE environment value (§6) to a mode,
// defaulting to Balanced when unset or unrecognized.
func ParseFlacMode(env string) FlacMode {
	switch env {
	case "UltraLowLatency":
		return FlacUltraLowLatency
	case "lowbw":
		return FlacLowBandwidth
	default:
		return FlacBalanced
	}
}

// flacEncoder wraps cocoonlife/goflac's libFLAC stream encoder
// bindings. The encoder library is constructed against a file path, so
// the wrapper opens an OS pipe and hands libFLAC the write end via its
// /proc/self/fd/<n> path, draining the read end in a background
// goroutine into a byte buffer that ProcessSamples drains into packets
// — avoiding a real temp file for a low-latency in-memory stream.
type flacEncoder struct {
	enc      *flac.Encoder
	pipeW    *os.File
	pipeR    *os.File
	outBuf   chan []byte
	channels int
	mode     FlacMode
	meta     Metadata
}

// newFlacEncoder builds a FLAC encoder for the given channel count and
// sample rate under the given mode.
func newFlacEncoder(channels, sampleRate int, mode FlacMode) (*flacEncoder, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("codec: flac pipe: %w", err)
	}

	opts := flac.Options{
		Channels:      channels,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
		BlockSize:     mode.BlockSize(),
		MidSide:       channels == 2,
		LooseMidSide:  channels == 2,
	}
	applyApodization(&opts, mode)

	enc, err := flac.NewEncoder(fmt.Sprintf("/proc/self/fd/%d", pw.Fd()), opts)
	if err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("codec: flac encoder init: %w", err)
	}

	// Critical override (§4.5): streamable_subset must be disabled
	// AFTER mode configuration, or the library silently falls back to
	// a 1024-sample block even when a non-standard block size (e.g.
	// audio_fft_size/2 = 394) was requested, producing audible
	// buffering tremor.
	enc.SetStreamableSubset(false)

	f := &flacEncoder{
		enc:      enc,
		pipeW:    pw,
		pipeR:    pr,
		outBuf:   make(chan []byte, 64),
		channels: channels,
		mode:     mode,
	}
	go f.drain()
	return f, nil
}

func applyApodization(opts *flac.Options, mode FlacMode) {
	switch mode {
	case FlacUltraLowLatency:
		opts.ApodizationPreset = "tukey(0.5)"
	case FlacLowBandwidth:
		opts.ApodizationPreset = "partial_tukey(2)"
	default:
		opts.ApodizationPreset = "tukey(0.25)"
	}
}

func (f *flacEncoder) drain() {
	buf := make([]byte, 8192)
	for {
		n, err := f.pipeR.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			f.outBuf <- chunk
		}
		if err != nil {
			close(f.outBuf)
			return
		}
	}
}

func (f *flacEncoder) SetMetadata(meta Metadata) { f.meta = meta }

func (f *flacEncoder) Channels() int { return f.channels }

func (f *flacEncoder) ProcessSamples(pcm []int16) ([]Packet, error) {
	frame := deinterleave(pcm, f.channels)
	if err := f.enc.WriteFrame(frame); err != nil {
		return nil, fmt.Errorf("codec: flac write: %w", err)
	}
	return f.drainPackets(), nil
}

func (f *flacEncoder) Finish() ([]Packet, error) {
	if err := f.enc.Close(); err != nil {
		f.pipeW.Close()
		return nil, fmt.Errorf("codec: flac finish: %w", err)
	}
	f.pipeW.Close()
	var out []Packet
	for chunk := range f.outBuf {
		out = append(out, f.wrap(chunk))
	}
	return out, nil
}

// drainPackets collects whatever has accumulated in outBuf without
// blocking, coalescing it into at most one packet per call.
func (f *flacEncoder) drainPackets() []Packet {
	var data []byte
	for {
		select {
		case chunk, ok := <-f.outBuf:
			if !ok {
				if len(data) == 0 {
					return nil
				}
				return []Packet{f.wrap(data)}
			}
			data = append(data, chunk...)
		default:
			if len(data) == 0 {
				return nil
			}
			return []Packet{f.wrap(data)}
		}
	}
}

func (f *flacEncoder) wrap(data []byte) Packet {
	return Packet{
		FrameNum: f.meta.FrameNum,
		L:        f.meta.L,
		M:        f.meta.M,
		R:        f.meta.R,
		Pwr:      f.meta.Pwr,
		Channels: uint32(f.channels),
		Data:     data,
	}
}

// deinterleave splits interleaved int16 PCM into libFLAC's planar int32
// per-channel frame representation.
func deinterleave(pcm []int16, channels int) flac.Frame {
	n := len(pcm) / channels
	planes := make([][]int32, channels)
	for c := range planes {
		planes[c] = make([]int32, n)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			planes[c][i] = int32(pcm[i*channels+c])
		}
	}
	return flac.Frame{Channels: planes}
}
