package main

import "time"

// StreamKind distinguishes the two throttled outbound stream types
// (§4.7): audio and waterfall have independent tier tables and base
// intervals.
type StreamKind int

const (
	StreamAudio StreamKind = iota
	StreamWaterfall
)

// audioBaseInterval and waterfallBaseInterval are the "T" in each
// mapping's min_interval column.
const (
	audioBaseInterval     = 20 * time.Millisecond
	waterfallBaseInterval = 40 * time.Millisecond
)

// throttleTier is one step of the adaptive backpressure ladder: once a
// connection's outbound buffered bytes exceed Bytes, frames are
// admitted only every SkipMod-th frame_num and no more often than
// MinInterval apart.
type throttleTier struct {
	Bytes       int
	SkipMod     uint64
	MinInterval time.Duration
}

// backpressureCeiling is the outbound buffer size beyond which a frame
// is dropped outright rather than throttled (ErrBackpressureOverflow,
// §5 "when pressure exceeds 800 kB...drop the packet rather than
// block").
const backpressureCeiling = 800 * 1024

// audioTiers implements §4.7's exact table, evaluated highest-bound
// first since thresholds are "buffered > N", not "buffered >= N".
var audioTiers = []throttleTier{
	{Bytes: 500_000, SkipMod: 20, MinInterval: 5 * audioBaseInterval},
	{Bytes: 300_000, SkipMod: 10, MinInterval: 4 * audioBaseInterval},
	{Bytes: 150_000, SkipMod: 5, MinInterval: 3 * audioBaseInterval},
	{Bytes: 75_000, SkipMod: 3, MinInterval: 2 * audioBaseInterval},
	{Bytes: 30_000, SkipMod: 2, MinInterval: audioBaseInterval},
	{Bytes: 0, SkipMod: 1, MinInterval: 0},
}

// waterfallTiers mirrors the audio table with T=40ms and the more
// aggressive decimation §4.7 specifies for waterfall.
var waterfallTiers = []throttleTier{
	{Bytes: 500_000, SkipMod: 30, MinInterval: 5 * waterfallBaseInterval},
	{Bytes: 300_000, SkipMod: 15, MinInterval: 4 * waterfallBaseInterval},
	{Bytes: 150_000, SkipMod: 8, MinInterval: 3 * waterfallBaseInterval},
	{Bytes: 75_000, SkipMod: 4, MinInterval: 2 * waterfallBaseInterval},
	{Bytes: 30_000, SkipMod: 2, MinInterval: waterfallBaseInterval},
	{Bytes: 0, SkipMod: 1, MinInterval: 0},
}

// ThrottleState tracks one connection's last-send timestamp for one
// stream kind; frame admission otherwise depends only on frame_num and
// the current buffered-byte reading, per §4.7.
type ThrottleState struct {
	kind     StreamKind
	lastSent time.Time
	hasSent  bool
}

// NewThrottleState builds a throttle tracker for the given stream kind.
func NewThrottleState(kind StreamKind) *ThrottleState {
	return &ThrottleState{kind: kind}
}

func (t *ThrottleState) tiers() []throttleTier {
	if t.kind == StreamWaterfall {
		return waterfallTiers
	}
	return audioTiers
}

// TierFor returns the tier matching the given buffered-byte reading,
// selecting the highest threshold strictly below it (P8: monotone in
// bufferedBytes).
func (t *ThrottleState) TierFor(bufferedBytes int) throttleTier {
	for _, tier := range t.tiers() {
		if bufferedBytes > tier.Bytes || tier.Bytes == 0 {
			return tier
		}
	}
	return t.tiers()[len(t.tiers())-1]
}

// Admit reports whether the frame numbered frameNum should be sent now
// given the connection's current outbound buffer size (§4.7, P8).
// bufferedBytes at or above backpressureCeiling always yields false.
func (t *ThrottleState) Admit(frameNum uint64, bufferedBytes int, now time.Time) bool {
	if bufferedBytes >= backpressureCeiling {
		return false
	}
	tier := t.TierFor(bufferedBytes)
	if tier.SkipMod > 1 && frameNum%tier.SkipMod != 0 {
		return false
	}
	if tier.MinInterval > 0 && t.hasSent && now.Sub(t.lastSent) < tier.MinInterval {
		return false
	}
	t.lastSent = now
	t.hasSent = true
	return true
}

// Reset clears throttle history, used when a connection resubscribes.
func (t *ThrottleState) Reset() {
	t.hasSent = false
}
