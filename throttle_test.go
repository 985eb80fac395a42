package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestThrottle_TierMonotonicity checks P8: for any fixed buffered
// amount, a higher buffered amount never yields a tier with a smaller
// skip_mod or a shorter min_interval.
func TestThrottle_TierMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := StreamAudio
		if rapid.Bool().Draw(t, "waterfall") {
			kind = StreamWaterfall
		}
		ts := NewThrottleState(kind)

		lo := rapid.IntRange(0, 1_000_000).Draw(t, "lo")
		hi := rapid.IntRange(lo, 1_000_000).Draw(t, "hi")

		tierLo := ts.TierFor(lo)
		tierHi := ts.TierFor(hi)

		assert.LessOrEqual(t, tierLo.SkipMod, tierHi.SkipMod)
		assert.LessOrEqual(t, tierLo.MinInterval, tierHi.MinInterval)
	})
}

// TestThrottle_BackpressureCeilingAlwaysDrops checks that buffered
// bytes at or above the 800 kB ceiling are never admitted.
func TestThrottle_BackpressureCeilingAlwaysDrops(t *testing.T) {
	ts := NewThrottleState(StreamAudio)
	assert.False(t, ts.Admit(1, backpressureCeiling, time.Now()))
	assert.False(t, ts.Admit(2, backpressureCeiling+1000, time.Now()))
}

// TestThrottle_UnthrottledAdmitsEveryFrame checks that a connection
// with no buffered bytes (tier 0) is admitted every frame regardless
// of frame_num.
func TestThrottle_UnthrottledAdmitsEveryFrame(t *testing.T) {
	ts := NewThrottleState(StreamAudio)
	now := time.Now()
	for fn := uint64(0); fn < 50; fn++ {
		assert.True(t, ts.Admit(fn, 0, now))
		now = now.Add(time.Millisecond)
	}
}

// TestThrottle_SkipModGating exercises end-to-end scenario 6: with
// buffered bytes stubbed at 200000 (between the 150000 and 300000
// tiers, skip_mod=5), over 100 consecutive frames roughly 20 should be
// admitted, spaced at least 60ms apart (3*20ms min_interval).
func TestThrottle_SkipModGating(t *testing.T) {
	ts := NewThrottleState(StreamAudio)
	const buffered = 200_000

	tier := ts.TierFor(buffered)
	assert.EqualValues(t, 5, tier.SkipMod)
	assert.Equal(t, 60*time.Millisecond, tier.MinInterval)

	now := time.Now()
	admitted := 0
	var lastAdmit time.Time
	for fn := uint64(0); fn < 100; fn++ {
		if ts.Admit(fn, buffered, now) {
			if admitted > 0 {
				assert.GreaterOrEqual(t, now.Sub(lastAdmit), 60*time.Millisecond)
			}
			lastAdmit = now
			admitted++
		}
		now = now.Add(20 * time.Millisecond)
	}
	assert.InDelta(t, 20, admitted, 2)
}
