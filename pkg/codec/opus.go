package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	opusMinRate = 8000
	opusMaxRate = 48000
	opusMaxPacketBytes = 4000 // generous upper bound for a 20ms frame at 128kbps
)

// opusEncoder wraps gopkg.in/hraban/opus.v2, buffering partial frames
// until a full 20ms frame is available (§4.5).
type opusEncoder struct {
	enc        *opus.Encoder
	channels   int
	sampleRate int
	frameSize  int // samples per channel per 20ms frame

	pending []int16 // interleaved PCM awaiting a full frame
	meta    Metadata
}

// newOpusEncoder builds an Opus encoder. sampleRate is clamped to
// [8k, 48k]; bitrate is 128 kbps for stereo, 80 kbps for mono.
func newOpusEncoder(channels, sampleRate int) (*opusEncoder, error) {
	clamped := sampleRate
	if clamped < opusMinRate {
		clamped = opusMinRate
	} else if clamped > opusMaxRate {
		clamped = opusMaxRate
	}

	enc, err := opus.NewEncoder(clamped, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encoder init: %w", err)
	}
	bitrate := 80000
	if channels == 2 {
		bitrate = 128000
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("codec: opus set bitrate: %w", err)
	}

	return &opusEncoder{
		enc:        enc,
		channels:   channels,
		sampleRate: clamped,
		frameSize:  clamped / 50, // 20ms
	}, nil
}

func (o *opusEncoder) SetMetadata(meta Metadata) { o.meta = meta }

func (o *opusEncoder) Channels() int { return o.channels }

// ProcessSamples buffers int16 PCM until full 20ms frames are available
// and encodes each full frame; it does no clipping of its own (the input
// is already int16).
func (o *opusEncoder) ProcessSamples(pcm []int16) ([]Packet, error) {
	o.pending = append(o.pending, pcm...)

	samplesPerFrame := o.frameSize * o.channels
	var packets []Packet
	for len(o.pending) >= samplesPerFrame {
		frame := o.pending[:samplesPerFrame]
		data := make([]byte, opusMaxPacketBytes)
		n, err := o.enc.Encode(frame, data)
		if err != nil {
			return packets, fmt.Errorf("codec: opus encode: %w", err)
		}
		packets = append(packets, o.wrap(data[:n]))
		o.pending = o.pending[samplesPerFrame:]
	}
	return packets, nil
}

// Finish pads any remaining partial frame with silence and encodes it,
// since Opus cannot encode a short frame.
func (o *opusEncoder) Finish() ([]Packet, error) {
	if len(o.pending) == 0 {
		return nil, nil
	}
	samplesPerFrame := o.frameSize * o.channels
	padded := make([]int16, samplesPerFrame)
	copy(padded, o.pending)
	o.pending = nil

	data := make([]byte, opusMaxPacketBytes)
	n, err := o.enc.Encode(padded, data)
	if err != nil {
		return nil, fmt.Errorf("codec: opus finish encode: %w", err)
	}
	return []Packet{o.wrap(data[:n])}, nil
}

func (o *opusEncoder) wrap(data []byte) Packet {
	return Packet{
		FrameNum: o.meta.FrameNum,
		L:        o.meta.L,
		M:        o.meta.M,
		R:        o.meta.R,
		Pwr:      o.meta.Pwr,
		Channels: uint32(o.channels),
		Data:     data,
	}
}

// clipInt32 implements §4.5's "int32 inputs are clipped at ±32767 then
// narrowed" rule for callers that still carry wider intermediate
// precision before handing PCM to the encoder.
func clipInt32(samples []int32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		if v > 32767 {
			v = 32767
		} else if v < -32767 {
			v = -32767
		}
		out[i] = int16(v)
	}
	return out
}
