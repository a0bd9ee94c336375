package coinsig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// runFrames feeds frames to the core and returns the indices of the
// frames on which it fired.
func runFrames(core *thresholdCore, dir Direction, frames []Frame) []int {
	var fired []int
	for i, f := range frames {
		if core.step(dir, f.Symbols, f.At).fire {
			fired = append(fired, i)
		}
	}
	return fired
}

func Test_thresholdFiresOnceAtCrossing(t *testing.T) {
	var agg = NewAggregator(false, quietLogger())
	var core = newThresholdCore(agg, 2, 0, MaskCallerWard, quietLogger())
	var clock = frameClock{now: epoch}

	var frames = beepFrames(&clock, 1) // nickel
	var crossAt = len(frames)
	frames = append(frames, beepFrames(&clock, 1)...) // second nickel
	var secondEnd = len(frames) - 1
	frames = append(frames, beepFrames(&clock, 2)...) // and a dime after

	var fired = runFrames(core, CallerWard, frames)

	require.Len(t, fired, 1)
	assert.Equal(t, secondEnd, fired[0], "fires on the frame that completes the second nickel")
	assert.Greater(t, fired[0], crossAt)
	assert.Equal(t, 4, agg.Count(CallerWard))
	assert.True(t, core.reached())
}

func Test_thresholdNeverFiresTwice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var required = rapid.IntRange(1, 6).Draw(t, "required")
		var coins = rapid.SliceOfN(rapid.IntRange(1, 5), 1, 8).Draw(t, "coins")

		var agg = NewAggregator(false, quietLogger())
		var core = newThresholdCore(agg, required, 0, MaskCallerWard, quietLogger())
		var clock = frameClock{now: epoch}

		var frames []Frame
		var total = 0
		for _, c := range coins {
			frames = append(frames, beepFrames(&clock, c)...)
			total += c
		}

		var fired = runFrames(core, CallerWard, frames)
		if total >= required {
			assert.Len(t, fired, 1)
		} else {
			assert.Empty(t, fired)
		}
	})
}

func Test_thresholdGraceDelay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var graceMs = rapid.IntRange(1, 3000).Draw(t, "grace")
		var grace = time.Duration(graceMs) * time.Millisecond

		var agg = NewAggregator(false, quietLogger())
		var core = newThresholdCore(agg, 2, grace, MaskCallerWard, quietLogger())
		var clock = frameClock{now: epoch}

		var frames = beepFrames(&clock, 2) // dime crosses the threshold
		var crossing = frames[len(frames)-1].At

		var fired = runFrames(core, CallerWard, frames)
		assert.Empty(t, fired, "must not fire at the crossing")
		assert.True(t, core.reached())

		// Silence only.  Fires on the first frame at least grace later.
		var firedAt time.Time
		for i := 0; i < 1000 && firedAt.IsZero(); i++ {
			var at = clock.next()
			if core.step(CallerWard, nil, at).fire {
				firedAt = at
			}
		}
		require.False(t, firedAt.IsZero())
		assert.GreaterOrEqual(t, firedAt.Sub(crossing), grace)
		assert.Less(t, firedAt.Sub(crossing), grace+FRAME_MS*time.Millisecond)
	})
}

func Test_thresholdGraceMeasuredFromFirstCrossing(t *testing.T) {
	var agg = NewAggregator(false, quietLogger())
	var core = newThresholdCore(agg, 1, time.Second, MaskCallerWard, quietLogger())
	var clock = frameClock{now: epoch}

	var frames = beepFrames(&clock, 1)
	var crossing = frames[len(frames)-1].At
	assert.Empty(t, runFrames(core, CallerWard, frames))

	// More deposits during the grace period do not restart it.
	var firedAt time.Time
	for i := 0; i < 10 && firedAt.IsZero(); i++ {
		for _, f := range beepFrames(&clock, 1) {
			if core.step(CallerWard, f.Symbols, f.At).fire {
				firedAt = f.At
			}
		}
	}
	require.False(t, firedAt.IsZero())
	assert.Less(t, firedAt.Sub(crossing), time.Second+FRAME_MS*time.Millisecond)
}

func Test_thresholdIgnoresOtherTriggers(t *testing.T) {
	var agg = NewAggregator(false, quietLogger())
	var core = newThresholdCore(agg, 1, 0, MaskExchangeWard, quietLogger())
	var clock = frameClock{now: epoch}

	assert.Empty(t, runFrames(core, CallerWard, beepFrames(&clock, 3)))
	assert.Equal(t, 3, agg.Count(CallerWard))
	assert.False(t, core.reached())

	assert.Len(t, runFrames(core, ExchangeWard, beepFrames(&clock, 1)), 1)
}

func Test_thresholdZeroRequiredNeverFires(t *testing.T) {
	var agg = NewAggregator(false, quietLogger())
	var core = newThresholdCore(agg, 0, 0, MaskBoth, quietLogger())
	var clock = frameClock{now: epoch}

	assert.Empty(t, runFrames(core, CallerWard, beepFrames(&clock, 5)))
	assert.Equal(t, 25, agg.Cents(CallerWard))
}
