// Package codec implements the polymorphic streaming encoder contract
// (§4.5): a narrow {SetMetadata, ProcessSamples, Finish} interface over
// FLAC and Opus variants, each producing CBOR-wrapped wire packets.
package codec

// Packet is the CBOR envelope wrapping one encoded audio payload (§6).
type Packet struct {
	FrameNum uint64 `cbor:"frame_num"`
	L        int32  `cbor:"l"`
	M        float64 `cbor:"m"`
	R        int32  `cbor:"r"`
	Pwr      float64 `cbor:"pwr"`
	Channels uint32 `cbor:"channels"`
	Data     []byte `cbor:"data"`
}

// Metadata carries the per-frame tuning/power fields attached to every
// packet an encoder emits until the next SetMetadata call.
type Metadata struct {
	FrameNum uint64
	L, R     int32
	M        float64
	Pwr      float64
}

// Encoder is the capability set every codec variant implements,
// replacing the teacher-era AudioEncoder inheritance hierarchy with a
// narrow interface (§9 design notes).
type Encoder interface {
	// SetMetadata updates the fields attached to subsequently produced
	// packets.
	SetMetadata(meta Metadata)
	// ProcessSamples encodes one frame's worth of interleaved int16
	// PCM (mono or stereo per Channels) and returns zero or more ready
	// packets. Opus buffers partial frames internally and may return
	// no packets for a given call.
	ProcessSamples(pcm []int16) ([]Packet, error)
	// Finish flushes any buffered audio and returns final packets. The
	// encoder must not be used again afterward.
	Finish() ([]Packet, error)
	// Channels reports the encoder's configured channel count.
	Channels() int
}
