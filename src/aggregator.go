package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Turn confirmed coin beeps into nickels.
 *
 * Description:	Each confirmed beep is worth 5 cents.  A nickel is one
 *		beep, a dime two, a quarter five.  Beeps belonging to one
 *		coin are grouped by a debounce window: once DEBOUNCE_TICKS
 *		audio ticks go by without another beep, the coin is
 *		considered complete.
 *
 *		Quarter pulses are short (about 33 ms) and the detector
 *		misses some of them.  In flexible mode a coin that ended
 *		with 3 or 4 beeps is assumed to have been a quarter.
 *		Missing beeps are much more likely than extra ones.
 *		This is a guess, so it is off unless asked for.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

const CENTS_PER_BEEP = 5

// A coin is complete when more than this many ticks pass without a beep.
// 10 ticks is about 200 ms with 20 ms frames.
const DEBOUNCE_TICKS = 10

const QUARTER_BEEPS = 5

// CoinCompleted is reported when a debounce window closes.
type CoinCompleted struct {
	Direction Direction
	RawHits   int // Beeps actually confirmed for this coin.
	Effective int // Beeps credited, after flexible rounding.
}

type aggDirection struct {
	count   int // Nickels so far.
	running bool
	ticks   int
	hits    int // Beeps in the coin being debounced.
}

// Aggregator keeps per-direction nickel counts for one call.
// Not safe for concurrent use; the owner serializes calls.
type Aggregator struct {
	flexible bool
	dir      [numDirections]aggDirection
	logger   *log.Logger
}

func NewAggregator(flexible bool, logger *log.Logger) *Aggregator {
	return &Aggregator{flexible: flexible, logger: loggerOr(logger)}
}

/*------------------------------------------------------------------
 *
 * Name:	Observe
 *
 * Purpose:	Consider one detector symbol.
 *
 * Returns:	True if it was a coin beep and was counted.
 *
 * Description:	Anything other than the coin symbols is ignored.
 *		The debounce timer restarts from zero on every beep.
 *
 *---------------------------------------------------------------*/

func (a *Aggregator) Observe(ev SymbolEvent) bool {
	if ev.Direction < 0 || ev.Direction >= numDirections {
		return false
	}
	if !ev.Symbol.IsCoinSymbol() {
		a.logger.Debug("ignoring symbol", "dir", ev.Direction, "symbol", ev.Symbol.String())
		return false
	}

	var d = &a.dir[ev.Direction]
	d.count++
	d.hits++
	d.running = true
	d.ticks = 0

	a.logger.Debug("coin beep", "dir", ev.Direction, "hits", d.hits, "count", d.count)
	return true
}

/*------------------------------------------------------------------
 *
 * Name:	Tick
 *
 * Purpose:	Advance the debounce timer by one audio frame.
 *
 * Returns:	The completed coin, if the window just closed.
 *
 *---------------------------------------------------------------*/

func (a *Aggregator) Tick(dir Direction) (CoinCompleted, bool) {
	if dir < 0 || dir >= numDirections {
		return CoinCompleted{}, false
	}

	var d = &a.dir[dir]
	if !d.running {
		return CoinCompleted{}, false
	}

	d.ticks++
	if d.ticks <= DEBOUNCE_TICKS {
		return CoinCompleted{}, false
	}

	var done = CoinCompleted{Direction: dir, RawHits: d.hits, Effective: d.hits}

	if a.flexible && (d.hits == 3 || d.hits == 4) {
		var difference = QUARTER_BEEPS - d.hits
		d.count += difference
		done.Effective = QUARTER_BEEPS
		a.logger.Debug("rounding partial coin up to a quarter", "dir", dir, "hits", d.hits, "added", difference)
	}

	d.hits = 0
	d.ticks = 0
	d.running = false

	return done, true
}

// Count is the number of nickels deposited in dir so far.
func (a *Aggregator) Count(dir Direction) int {
	if dir < 0 || dir >= numDirections {
		return 0
	}
	return a.dir[dir].count
}

// Cents is Count in cents.
func (a *Aggregator) Cents(dir Direction) int {
	return a.Count(dir) * CENTS_PER_BEEP
}

// Pending reports whether a coin is still being debounced in dir.
func (a *Aggregator) Pending(dir Direction) bool {
	if dir < 0 || dir >= numDirections {
		return false
	}
	return a.dir[dir].running
}

// CentsToNickels converts an amount to a beep count, rounding up so
// that the threshold is never less than the amount asked for.
func CentsToNickels(cents int) int {
	if cents <= 0 {
		return 0
	}
	return (cents + CENTS_PER_BEEP - 1) / CENTS_PER_BEEP
}
