package codec

import "fmt"

// Kind selects the codec family (§2 C5: polymorphic encoder {FLAC, Opus}).
type Kind int

const (
	KindFlac Kind = iota
	KindOpus
)

// New builds an Encoder for the given kind, channel count, and sample
// rate. mode is only consulted for KindFlac.
func New(kind Kind, channels, sampleRate int, mode FlacMode) (Encoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("codec: unsupported channel count %d", channels)
	}
	switch kind {
	case KindFlac:
		return newFlacEncoder(channels, sampleRate, mode)
	case KindOpus:
		return newOpusEncoder(channels, sampleRate)
	default:
		return nil, fmt.Errorf("codec: unknown encoder kind %d", kind)
	}
}
