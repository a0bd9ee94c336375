package coinsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// tickUntilDone ticks dir until a coin completes, at most limit times.
func tickUntilDone(a *Aggregator, dir Direction, limit int) (CoinCompleted, int, bool) {
	for i := 1; i <= limit; i++ {
		if done, ok := a.Tick(dir); ok {
			return done, i, true
		}
	}
	return CoinCompleted{}, limit, false
}

func Test_aggregatorOneCoinPerBurst(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var dir = Direction(rapid.IntRange(0, numDirections-1).Draw(t, "dir"))
		var n = rapid.IntRange(1, 20).Draw(t, "beeps")
		var a = NewAggregator(false, quietLogger())

		var before = a.Count(dir)
		for i := 0; i < n; i++ {
			require.True(t, a.Observe(SymbolEvent{Direction: dir, Symbol: SymbolCoinDual}))
			// Any gap shorter than the debounce keeps it one coin.
			var gap = rapid.IntRange(0, DEBOUNCE_TICKS).Draw(t, "gap")
			for j := 0; j < gap; j++ {
				var _, ok = a.Tick(dir)
				require.False(t, ok, "coin completed inside the debounce window")
			}
		}

		var done, ticks, ok = tickUntilDone(a, dir, 100)
		require.True(t, ok)
		assert.Equal(t, DEBOUNCE_TICKS+1, ticks)
		assert.Equal(t, n, done.RawHits)
		assert.Equal(t, n, done.Effective)
		assert.Equal(t, dir, done.Direction)
		assert.Equal(t, before+n, a.Count(dir))
		assert.Equal(t, (before+n)*CENTS_PER_BEEP, a.Cents(dir))

		// Only one completion per burst.
		var _, _, again = tickUntilDone(a, dir, 100)
		assert.False(t, again)
	})
}

func Test_aggregatorDirectionsIndependent(t *testing.T) {
	var a = NewAggregator(false, quietLogger())

	a.Observe(SymbolEvent{Direction: CallerWard, Symbol: SymbolCoinDual})
	a.Observe(SymbolEvent{Direction: ExchangeWard, Symbol: SymbolCoinSingle})
	a.Observe(SymbolEvent{Direction: ExchangeWard, Symbol: SymbolCoinSingle})

	var rx, _, _ = tickUntilDone(a, CallerWard, 20)
	var tx, _, _ = tickUntilDone(a, ExchangeWard, 20)

	assert.Equal(t, 1, rx.RawHits)
	assert.Equal(t, 2, tx.RawHits)
	assert.Equal(t, 5, a.Cents(CallerWard))
	assert.Equal(t, 10, a.Cents(ExchangeWard))
}

func Test_aggregatorIgnoresOtherSymbols(t *testing.T) {
	var a = NewAggregator(false, quietLogger())

	for _, s := range []Symbol{'1', '*', '#', 'A', SymbolPrimer, SymbolNone} {
		assert.False(t, a.Observe(SymbolEvent{Direction: CallerWard, Symbol: s}), "symbol %q", s)
	}
	assert.False(t, a.Pending(CallerWard))
	assert.Zero(t, a.Count(CallerWard))

	assert.False(t, a.Observe(SymbolEvent{Direction: Direction(7), Symbol: SymbolCoinDual}))
	assert.Zero(t, a.Count(Direction(7)))
}

func Test_aggregatorFlexibleRounding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var flexible = rapid.Bool().Draw(t, "flexible")
		var n = rapid.IntRange(1, 8).Draw(t, "beeps")
		var a = NewAggregator(flexible, quietLogger())

		for i := 0; i < n; i++ {
			a.Observe(SymbolEvent{Direction: CallerWard, Symbol: SymbolCoinDual})
		}
		var done, _, ok = tickUntilDone(a, CallerWard, 20)
		require.True(t, ok)

		var want = n
		if flexible && (n == 3 || n == 4) {
			want = QUARTER_BEEPS
		}
		assert.Equal(t, n, done.RawHits)
		assert.Equal(t, want, done.Effective)
		assert.Equal(t, want, a.Count(CallerWard))
	})
}

func Test_CentsToNickels(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var cents = rapid.IntRange(1, 100000).Draw(t, "cents")
		var n = CentsToNickels(cents)

		assert.GreaterOrEqual(t, n*CENTS_PER_BEEP, cents, "never less than asked for")
		assert.Less(t, (n-1)*CENTS_PER_BEEP, cents, "no more than one nickel over")
		if cents%CENTS_PER_BEEP != 0 {
			assert.Equal(t, cents/CENTS_PER_BEEP+1, n)
		}
	})

	assert.Equal(t, 0, CentsToNickels(0))
	assert.Equal(t, 0, CentsToNickels(-5))
	assert.Equal(t, 7, CentsToNickels(35))
	assert.Equal(t, 7, CentsToNickels(31))
}
