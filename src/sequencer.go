package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Transmit a coin disposition to the far end.
 *
 * Description:	Two styles.
 *
 *		Legacy multi-wink: the disposition is a count of winks,
 *		each held WINK_PULSE_MS and followed by a gap.  No tones.
 *
 *		EIS: one wink, optionally with an audible priming tone,
 *		then after EIS_SETTLE_MS the MF digit for the disposition
 *		for EIS_DIGIT_MS.
 *
 *		The request is validated completely before anything is
 *		sent.  If the sequence is interrupted it is abandoned and
 *		never retried; repeating a coin control signal without
 *		confirmation could collect or refund twice.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// SignalStyle selects how a disposition is encoded.
type SignalStyle int

const (
	StyleEIS SignalStyle = iota
	StyleLegacy
)

func (s SignalStyle) String() string {
	if s == StyleLegacy {
		return "legacy"
	}
	return "eis"
}

// ParseSignalStyle accepts "eis" and "legacy" (or "multiwink").
func ParseSignalStyle(s string) (SignalStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eis", "inband", "":
		return StyleEIS, nil
	case "legacy", "multiwink", "wink":
		return StyleLegacy, nil
	}
	return StyleEIS, configError("parse signal style", fmt.Errorf("unknown signaling style %q", s))
}

const (
	WINK_PULSE_MS     = 380
	WINK_GAP_LONG_MS  = 300 // After each pulse when sending 3 or more.
	WINK_GAP_SHORT_MS = 120

	EIS_PRIMER_MS = 425
	EIS_SETTLE_MS = 1275 // Primer plus 850 ms of silence.
	EIS_DIGIT_MS  = 700
)

// Transmitter is the outbound side of a call leg.
type Transmitter interface {
	// Wink sends one out-of-band wink.  Hold is how long the line is
	// held in the winked state; the call returns without waiting.
	Wink(hold time.Duration) error

	// PlayTones starts continuous tones at the given frequencies,
	// replacing anything already playing.
	PlayTones(freqs []float64) error

	StopTones() error
}

// A Transmitter that may lack an audio path says so here, so EIS is
// refused before the wink goes out.
type toneCapable interface {
	CanPlayTones() bool
}

// Pacer waits between signal phases.  It must return promptly with an
// error if ctx ends or the call goes away.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// RealTimePacer sleeps on the wall clock.
type RealTimePacer struct{}

func (RealTimePacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	var t = time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sequencer sends dispositions.
type Sequencer struct {
	Pacer    Pacer
	PrimerHz float64 // Zero means PRIMER_TONE.
	Logger   *log.Logger
}

func (q *Sequencer) pacer() Pacer {
	if q.Pacer == nil {
		return RealTimePacer{}
	}
	return q.Pacer
}

/*------------------------------------------------------------------
 *
 * Name:	Signal
 *
 * Purpose:	Send one disposition.
 *
 * Inputs:	tx	- Outbound leg.
 *		d	- What to ask for.
 *		style	- EIS or legacy.
 *		audible	- EIS only: send the in-band priming tone.
 *
 * Returns:	Nil when the whole sequence went out.
 *		KindConfiguration if d cannot be sent in this style;
 *		nothing was sent.
 *		KindResource if EIS is asked of a transmitter with
 *		no audio; nothing was sent.
 *		KindTermination if interrupted; tones are stopped and
 *		nothing is retried.
 *
 *---------------------------------------------------------------*/

func (q *Sequencer) Signal(ctx context.Context, tx Transmitter, d Disposition, style SignalStyle, audible bool) error {
	var logger = loggerOr(q.Logger)

	if _, ok := dispositionTable[d]; !ok {
		return configError("signal disposition", fmt.Errorf("unknown disposition %d", int(d)))
	}

	var err error
	switch style {
	case StyleLegacy:
		var pulses, ok = d.PulseCount()
		if !ok {
			return configError("signal disposition", fmt.Errorf("%s has no multi-wink equivalent, use EIS", d.Name()))
		}
		logger.Info("sending multi-wink disposition", "disposition", d, "winks", pulses)
		err = q.sendLegacy(ctx, tx, pulses)

	case StyleEIS:
		if tc, ok := tx.(toneCapable); ok && !tc.CanPlayTones() {
			return wrapError(KindResource, "signal disposition", fmt.Errorf("%s needs an MF digit: %w", d.Name(), ErrNoAudio))
		}
		logger.Info("sending EIS disposition", "disposition", d, "digit", d.Symbol().String(), "audible", audible)
		err = q.sendEIS(ctx, tx, d, audible)

	default:
		return configError("signal disposition", fmt.Errorf("unknown style %d", int(style)))
	}

	if err != nil {
		logger.Error("disposition signal interrupted, not retrying", "disposition", d, "err", err)
		return wrapError(KindTermination, "signal disposition", err)
	}
	return nil
}

// SignalByName parses name and sends it.
func (q *Sequencer) SignalByName(ctx context.Context, tx Transmitter, name string, style SignalStyle, audible bool) error {
	var d, err = ParseDisposition(name)
	if err != nil {
		return err
	}
	return q.Signal(ctx, tx, d, style, audible)
}

func (q *Sequencer) sendLegacy(ctx context.Context, tx Transmitter, pulses int) error {
	var gap = WINK_GAP_SHORT_MS * time.Millisecond
	if pulses >= 3 {
		gap = WINK_GAP_LONG_MS * time.Millisecond
	}
	var hold = WINK_PULSE_MS * time.Millisecond

	for i := 0; i < pulses; i++ {
		if err := tx.Wink(hold); err != nil {
			return err
		}
		if err := q.pacer().Pause(ctx, hold); err != nil {
			return err
		}
		if err := q.pacer().Pause(ctx, gap); err != nil {
			return err
		}
	}
	return nil
}

func (q *Sequencer) sendEIS(ctx context.Context, tx Transmitter, d Disposition, audible bool) error {
	var pair = d.MFPair()

	if err := tx.Wink(WINK_PULSE_MS * time.Millisecond); err != nil {
		return err
	}

	if audible {
		var hz = q.PrimerHz
		if hz <= 0 {
			hz = PRIMER_TONE
		}
		if err := tx.PlayTones([]float64{hz}); err != nil {
			return err
		}
		if err := q.pacer().Pause(ctx, EIS_PRIMER_MS*time.Millisecond); err != nil {
			tx.StopTones() //nolint:errcheck
			return err
		}
		if err := tx.StopTones(); err != nil {
			return err
		}
		if err := q.pacer().Pause(ctx, (EIS_SETTLE_MS-EIS_PRIMER_MS)*time.Millisecond); err != nil {
			return err
		}
	} else {
		if err := q.pacer().Pause(ctx, EIS_SETTLE_MS*time.Millisecond); err != nil {
			return err
		}
	}

	if err := tx.PlayTones(pair[:]); err != nil {
		return err
	}
	if err := q.pacer().Pause(ctx, EIS_DIGIT_MS*time.Millisecond); err != nil {
		tx.StopTones() //nolint:errcheck
		return err
	}
	return tx.StopTones()
}
