package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Receive side of Expanded In-Band Signaling.
 *
 * Description:	The far end sends a wink (out of band) followed by one
 *		MF digit (in band) that says what to do with the coins.
 *
 *		IDLE --wink--> WINK_OPEN
 *		WINK_OPEN --first mapped MF digit--> WINK_OPEN, satisfied
 *		WINK_OPEN --age >= EIS_WINDOW--> IDLE
 *
 *		Expiry is checked lazily on the next frame.  Exactly one
 *		disposition is accepted per window.  A second wink while
 *		the window is open is discarded and does not extend it.
 *
 *		While the window is open, audio in the watched direction
 *		is replaced with silence so the MF digit never reaches
 *		the other party.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

// How long after a wink the MF digit may arrive.
const EIS_WINDOW = 2000 * time.Millisecond

// WinkCorrelator is the per-call EIS state.
// Not safe for concurrent use; the owner serializes calls.
type WinkCorrelator struct {
	watched Direction
	window  time.Duration
	mf      ToneDetector // nil: rely on host-decoded digits.

	hasSeenWink bool
	open        bool
	openedAt    time.Time
	satisfied   bool
	lastDigit   Symbol

	// Called once per accepted disposition, before HandleFrame returns.
	onDisposition func(Disposition, time.Time)

	logger *log.Logger
}

// WinkCorrelatorOptions configures NewWinkCorrelator.
type WinkCorrelatorOptions struct {
	Watched Direction

	// MF detector run over voice frames in the watched direction.
	// Optional.
	MF ToneDetector

	// Zero means EIS_WINDOW.
	Window time.Duration

	OnDisposition func(Disposition, time.Time)

	Logger *log.Logger
}

func NewWinkCorrelator(opts WinkCorrelatorOptions) *WinkCorrelator {
	var window = opts.Window
	if window <= 0 {
		window = EIS_WINDOW
	}
	return &WinkCorrelator{
		watched:       opts.Watched,
		window:        window,
		mf:            opts.MF,
		onDisposition: opts.OnDisposition,
		logger:        loggerOr(opts.Logger),
	}
}

// Watched is the direction carrying the far end's signaling.
func (w *WinkCorrelator) Watched() Direction {
	return w.watched
}

// WindowOpen reports whether a wink window is open as of now.
func (w *WinkCorrelator) WindowOpen(now time.Time) bool {
	w.expire(now)
	return w.open
}

// LastDigit is the most recently accepted disposition digit.
func (w *WinkCorrelator) LastDigit() Symbol {
	return w.lastDigit
}

// HasSeenWink reports whether any wink has been seen on this call.
func (w *WinkCorrelator) HasSeenWink() bool {
	return w.hasSeenWink
}

func (w *WinkCorrelator) expire(now time.Time) {
	if w.open && now.Sub(w.openedAt) >= w.window {
		w.logger.Debug("wink window expired", "satisfied", w.satisfied, "age", now.Sub(w.openedAt))
		w.open = false
		w.satisfied = false
	}
}

/*------------------------------------------------------------------
 *
 * Name:	Wink
 *
 * Purpose:	A wink arrived in the watched direction.
 *
 *---------------------------------------------------------------*/

func (w *WinkCorrelator) Wink(now time.Time) {
	w.expire(now)

	if w.open {
		// Far end is probably configured for multi-wink rather than EIS.
		w.logger.Warn("wink received while wink window already open, ignoring", "age", now.Sub(w.openedAt))
		return
	}

	w.hasSeenWink = true
	w.open = true
	w.openedAt = now
	w.satisfied = false
	w.logger.Debug("wink received, waiting for MF digit", "window", w.window)
}

/*------------------------------------------------------------------
 *
 * Name:	Digit
 *
 * Purpose:	An MF digit arrived in the watched direction.
 *
 * Returns:	The disposition, if this digit was accepted.
 *
 *---------------------------------------------------------------*/

func (w *WinkCorrelator) Digit(s Symbol, now time.Time) (Disposition, bool) {
	w.expire(now)

	if !w.open {
		w.logger.Debug("MF digit outside wink window, ignoring", "digit", s.String())
		return 0, false
	}

	if w.satisfied {
		// Long MF tones can be detected more than once.
		if s == w.lastDigit {
			w.logger.Debug("repeat of accepted MF digit", "digit", s.String())
		} else {
			w.logger.Warn("different MF digit after disposition already accepted, ignoring",
				"digit", s.String(), "accepted", w.lastDigit.String())
		}
		return 0, false
	}

	var d, ok = DispositionForSymbol(s)
	if !ok {
		w.logger.Debug("MF digit has no coin disposition, ignoring", "digit", s.String())
		return 0, false
	}

	w.satisfied = true
	w.lastDigit = s
	w.logger.Info("coin disposition received", "disposition", d, "digit", s.String())

	if w.onDisposition != nil {
		w.onDisposition(d, now)
	}
	return d, true
}

/*------------------------------------------------------------------
 *
 * Name:	HandleFrame
 *
 * Purpose:	Per-frame hook.
 *
 * Inputs:	dir	- Direction the frame is travelling.
 *		f	- The frame.  May be rewritten to silence.
 *
 * Returns:	Dispositions accepted on this frame (at most one).
 *
 *---------------------------------------------------------------*/

func (w *WinkCorrelator) HandleFrame(dir Direction, f *Frame) []Disposition {
	if f == nil || dir != w.watched {
		return nil
	}

	var now = f.At
	if now.IsZero() {
		now = time.Now()
	}
	w.expire(now)

	var accepted []Disposition
	var take = func(s Symbol) {
		if d, ok := w.Digit(s, now); ok {
			accepted = append(accepted, d)
		}
	}

	switch f.Kind {
	case FrameControl:
		if f.Control == ControlWink {
			w.Wink(now)
		}
		return nil

	case FrameDigit:
		take(f.Digit)

	case FrameVoice:
		var symbols = f.Symbols
		if w.mf != nil && len(f.Samples) > 0 {
			symbols = append(symbols[:len(symbols):len(symbols)], w.mf.Process(f.Samples)...)
		}
		for _, s := range symbols {
			switch {
			case s == SymbolPrimer:
				// In-band stand-in for the wink, heard on recordings.
				w.Wink(now)
			case s.IsDigit():
				take(s)
			}
		}
	}

	if w.open && (f.Kind == FrameVoice || f.Kind == FrameDigit) {
		f.Silence()
	}

	return accepted
}
