package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Coin deposit detector attached to a call.
 *
 * Description:	Runs on every frame of the selected directions
 *		independently of whatever else the call is doing.  The
 *		running counts can be read from outside at any time and,
 *		optionally, the call is redirected once when a direction
 *		has deposited the required amount.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const DEFAULT_SAMPLE_RATE = 8000

// DetectorOptions configures an attached deposit detector.
type DetectorOptions struct {
	// Directions to listen to.  Zero means caller-ward only.
	Directions DirectionMask

	// Threshold in nickels.  Zero for none.  See CentsToNickels.
	RequiredNickels int

	// Wait this long after the threshold is first reached before acting.
	Grace time.Duration

	Relaxed         bool // Looser tone detection.
	SingleFrequency bool // 2200 Hz only.
	Flexible        bool // Round 3 or 4 beeps up to a quarter.

	// Where to send the call when the threshold is reached in each
	// direction.  Omitted parts are taken from the call's location at
	// attach time.  Nil for no redirect.
	RedirectCallerWard   *Location
	RedirectExchangeWard *Location

	// Zero means DEFAULT_SAMPLE_RATE.
	SampleRate int

	Logger *log.Logger
}

func (o *DetectorOptions) validate() error {
	if o.RequiredNickels < 0 {
		return configError("attach detector", fmt.Errorf("invalid required amount %d", o.RequiredNickels))
	}
	if o.Grace < 0 {
		return configError("attach detector", fmt.Errorf("invalid delay %s", o.Grace))
	}
	if o.SampleRate < 0 {
		return configError("attach detector", fmt.Errorf("invalid sample rate %d", o.SampleRate))
	}
	if (o.RedirectCallerWard != nil || o.RedirectExchangeWard != nil) && o.RequiredNickels == 0 {
		return configError("attach detector", errors.New("redirect requires an amount"))
	}
	return nil
}

// DepositDetector is the per-call state of an attached detector.
type DepositDetector struct {
	directions DirectionMask
	agg        *Aggregator
	core       *thresholdCore
	tones      [numDirections]ToneDetector
	redirect   [numDirections]*Location
	logger     *log.Logger
}

/*------------------------------------------------------------------
 *
 * Name:	newDepositDetector
 *
 * Purpose:	Build detector state.  Nothing is attached yet, so on
 *		error there is nothing to undo.
 *
 * Inputs:	current	- Call location for completing redirect targets.
 *
 *---------------------------------------------------------------*/

func newDepositDetector(current Location, opts DetectorOptions) (*DepositDetector, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var logger = loggerOr(opts.Logger)
	var rate = opts.SampleRate
	if rate == 0 {
		rate = DEFAULT_SAMPLE_RATE
	}
	var dirs = opts.Directions
	if dirs == 0 {
		dirs = MaskCallerWard
	}

	var d = &DepositDetector{directions: dirs, logger: logger}

	// With any target set, only directions that have one can trigger.
	var targets = [numDirections]*Location{opts.RedirectCallerWard, opts.RedirectExchangeWard}
	var triggers DirectionMask
	for dir, t := range targets {
		if t == nil {
			continue
		}
		var resolved = ResolveLocation(*t, current)
		d.redirect[dir] = &resolved
		triggers |= 1 << dir
	}
	if triggers == 0 {
		triggers = dirs
	}

	for dir := Direction(0); dir < numDirections; dir++ {
		if !dirs.Has(dir) {
			continue
		}
		var td, err = NewToneDetector(ToneDetectorOptions{
			SampleRate:      rate,
			Mode:            DetectCoin,
			Relaxed:         opts.Relaxed,
			SingleFrequency: opts.SingleFrequency,
		})
		if err != nil {
			return nil, err
		}
		d.tones[dir] = td
	}

	d.agg = NewAggregator(opts.Flexible, logger)
	d.core = newThresholdCore(d.agg, opts.RequiredNickels, opts.Grace, triggers, logger)
	return d, nil
}

// Cents deposited in dir so far.
func (d *DepositDetector) Cents(dir Direction) int {
	return d.agg.Cents(dir)
}

// Target is the resolved redirect for dir, if any.
func (d *DepositDetector) Target(dir Direction) (Location, bool) {
	if dir < 0 || dir >= numDirections || d.redirect[dir] == nil {
		return Location{}, false
	}
	return *d.redirect[dir], true
}

// frameSymbols collects what to feed the aggregator for one frame.
func (d *DepositDetector) frameSymbols(dir Direction, f *Frame) []Symbol {
	switch f.Kind {
	case FrameVoice:
		var symbols = f.Symbols
		if d.tones[dir] != nil && len(f.Samples) > 0 {
			symbols = append(symbols[:len(symbols):len(symbols)], d.tones[dir].Process(f.Samples)...)
		}
		return symbols
	case FrameDigit:
		return []Symbol{f.Digit}
	}
	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	handleFrame
 *
 * Purpose:	Per-frame hook.  Never fails; problems are logged.
 *
 * Inputs:	ch	- The call, locked by the caller.
 *		dir	- Direction of the frame.
 *		f	- The frame.  Not modified.
 *		sink	- Where events go.  May be nil.
 *
 *---------------------------------------------------------------*/

func (d *DepositDetector) handleFrame(ch Channel, dir Direction, f *Frame, sink EventSink) {
	if !d.directions.Has(dir) || f.Kind == FrameControl {
		return
	}

	var res = d.core.step(dir, d.frameSymbols(dir, f), f.At)

	for _, c := range res.completed {
		d.logger.Info("coin deposited", "channel", ch.Name(), "dir", c.Direction,
			"beeps", c.RawHits, "credited", c.Effective, "cents", d.agg.Cents(c.Direction))
		if sink != nil {
			var ev = newEvent(EventCoin, ch.Name(), f.At)
			ev.Direction = c.Direction.String()
			ev.RawHits = c.RawHits
			ev.Effective = c.Effective
			ev.Cents = d.agg.Cents(c.Direction)
			sink.Publish(ev)
		}
	}

	if res.fire {
		d.fire(ch, res.firedBy, f.At, sink)
	}
}

func (d *DepositDetector) fire(ch Channel, dir Direction, at time.Time, sink EventSink) {
	var ev = newEvent(EventThreshold, ch.Name(), at)
	ev.Direction = dir.String()
	ev.Cents = d.agg.Cents(dir)

	var target = d.redirect[dir]
	switch {
	case target != nil:
		ev.Redirect = target.String()
		d.logger.Info("deposit threshold met, redirecting", "channel", ch.Name(), "dir", dir, "to", target.String())
		if err := ch.Redirect(*target); err != nil {
			d.logger.Error("redirect failed", "channel", ch.Name(), "to", target.String(), "err", err)
		}
	default:
		d.logger.Info("deposit threshold met", "channel", ch.Name(), "dir", dir, "cents", ev.Cents)
	}

	if sink != nil {
		sink.Publish(ev)
	}
}
