package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Required-amount threshold with optional grace delay
 *		and a one-shot action.
 *
 * Description:	Shared by the blocking wait and the attached detector.
 *		The caller feeds one frame at a time per direction and
 *		acts when step reports that the action should fire.
 *
 *		The grace delay is measured from the first time the
 *		threshold is crossed.  Further deposits do not restart it.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

type thresholdCore struct {
	agg      *Aggregator
	required int // Nickels.  0 means no threshold.
	grace    time.Duration
	triggers DirectionMask // Directions whose crossing arms the action.

	pending   bool // Armed, waiting out the grace delay.
	crossedAt time.Time
	crossedBy Direction
	fired     bool // Fires at most once.

	logger *log.Logger
}

func newThresholdCore(agg *Aggregator, required int, grace time.Duration, triggers DirectionMask, logger *log.Logger) *thresholdCore {
	return &thresholdCore{
		agg:      agg,
		required: required,
		grace:    grace,
		triggers: triggers,
		logger:   loggerOr(logger),
	}
}

// stepResult is what happened while processing one frame.
type stepResult struct {
	completed []CoinCompleted
	fire      bool
	firedBy   Direction
}

/*------------------------------------------------------------------
 *
 * Name:	step
 *
 * Purpose:	Process the symbols detected in one frame of one
 *		direction, then advance that direction's timers.
 *
 * Inputs:	dir	- Direction the frame travelled.
 *		symbols	- Detector output for the frame, possibly empty.
 *		now	- Frame time.  Grace expiry is judged on this.
 *
 * Returns:	Completed coins and whether the action fires now.
 *		fire is true at most once over the life of the core.
 *
 *---------------------------------------------------------------*/

func (t *thresholdCore) step(dir Direction, symbols []Symbol, now time.Time) stepResult {
	var res stepResult

	for _, s := range symbols {
		t.agg.Observe(SymbolEvent{Direction: dir, Symbol: s, At: now})
	}

	var done, ok = t.agg.Tick(dir)
	if ok {
		res.completed = append(res.completed, done)
		t.checkCrossing(dir, now)
	}

	if t.pending && !t.fired && now.Sub(t.crossedAt) >= t.grace {
		t.pending = false
		t.fired = true
		res.fire = true
		res.firedBy = t.crossedBy
	}

	return res
}

func (t *thresholdCore) checkCrossing(dir Direction, now time.Time) {
	if t.required <= 0 || t.pending || t.fired {
		return
	}
	if !t.triggers.Has(dir) {
		return
	}
	if t.agg.Count(dir) < t.required {
		return
	}

	t.pending = true
	t.crossedAt = now
	t.crossedBy = dir

	t.logger.Debug("deposit threshold reached", "dir", dir, "nickels", t.agg.Count(dir), "required", t.required, "grace", t.grace)
}

// reached reports whether the threshold has been crossed, fired or not.
func (t *thresholdCore) reached() bool {
	return t.pending || t.fired
}
