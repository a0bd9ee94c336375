package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Block the call until enough money has been deposited.
 *
 * Description:	Reads frames from the caller until the required amount
 *		has been counted and any grace delay has passed, the
 *		overall timeout expires, or the call ends.  Whatever
 *		happens, the amount deposited so far is reported.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// WaitStatus is the outcome of WaitForDeposit.
type WaitStatus int

const (
	StatusSuccess WaitStatus = iota
	StatusTimeout
	StatusHangup
	StatusError
)

func (s WaitStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusHangup:
		return "HANGUP"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("WaitStatus(%d)", int(s))
}

// WaitOptions configures WaitForDeposit.
type WaitOptions struct {
	Cents   int           // Required.  Rounded up to a whole nickel.
	Timeout time.Duration // Zero for no limit.
	Grace   time.Duration // Keep listening this long after success.

	Relaxed         bool
	SingleFrequency bool
	Flexible        bool

	// Zero means DEFAULT_SAMPLE_RATE.
	SampleRate int

	Logger *log.Logger
}

// WaitResult is what WaitForDeposit found.
type WaitResult struct {
	Status WaitStatus
	Cents  int
}

func (o *WaitOptions) validate() error {
	if o.Cents <= 0 {
		return configError("wait for deposit", fmt.Errorf("invalid amount %d", o.Cents))
	}
	if o.Timeout < 0 {
		return configError("wait for deposit", fmt.Errorf("invalid timeout %s", o.Timeout))
	}
	if o.Grace < 0 {
		return configError("wait for deposit", fmt.Errorf("invalid delay %s", o.Grace))
	}
	if o.SampleRate < 0 {
		return configError("wait for deposit", fmt.Errorf("invalid sample rate %d", o.SampleRate))
	}
	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	WaitForDeposit
 *
 * Purpose:	Synchronous deposit wait.
 *
 * Inputs:	ctx	- Cancelled by the host when the call goes away.
 *		ch	- Call to read caller-ward frames from.  Not
 *			  locked here; the waiting thread owns the reads.
 *		opts	- Amount, limits and detection options.
 *
 * Returns:	Status and cents deposited so far.  The error is set
 *		only with StatusError.  A hangup is a status, not an
 *		error.
 *
 * Description:	The timeout runs on the wall clock and on frame time,
 *		whichever ends first.  Frame time counts from the
 *		first frame read, so recordings that deliver frames
 *		faster than real time still time out.
 *
 *---------------------------------------------------------------*/

func WaitForDeposit(ctx context.Context, ch Channel, opts WaitOptions) (WaitResult, error) {
	if err := opts.validate(); err != nil {
		return WaitResult{Status: StatusError}, err
	}

	var logger = loggerOr(opts.Logger).With("channel", ch.Name())
	var rate = opts.SampleRate
	if rate == 0 {
		rate = DEFAULT_SAMPLE_RATE
	}

	var td, err = NewToneDetector(ToneDetectorOptions{
		SampleRate:      rate,
		Mode:            DetectCoin,
		Relaxed:         opts.Relaxed,
		SingleFrequency: opts.SingleFrequency,
	})
	if err != nil {
		return WaitResult{Status: StatusError}, err
	}

	var agg = NewAggregator(opts.Flexible, logger)
	var required = CentsToNickels(opts.Cents)
	var core = newThresholdCore(agg, required, opts.Grace, MaskCallerWard, logger)

	var waitCtx = ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logger.Debug("waiting for deposit", "cents", opts.Cents, "nickels", required, "timeout", opts.Timeout, "grace", opts.Grace)

	var result = func(s WaitStatus) WaitResult {
		return WaitResult{Status: s, Cents: agg.Cents(CallerWard)}
	}

	var timedOut = func() (WaitResult, error) {
		logger.Info("timed out waiting for deposit", "cents", agg.Cents(CallerWard), "required", opts.Cents)
		return result(StatusTimeout), nil
	}

	var first time.Time
	for {
		var f, err = ch.ReadFrame(waitCtx)
		if err != nil {
			switch {
			case errors.Is(err, ErrHangup):
				logger.Info("hangup while waiting for deposit", "cents", agg.Cents(CallerWard))
				return result(StatusHangup), nil
			case ctx.Err() != nil:
				// The host cancels when the call ends.
				logger.Info("wait cancelled", "cents", agg.Cents(CallerWard))
				return result(StatusHangup), nil
			case waitCtx.Err() != nil:
				return timedOut()
			}
			return result(StatusError), wrapError(KindResource, "wait for deposit", err)
		}

		if f.Kind == FrameControl {
			if f.Control == ControlHangup {
				logger.Info("hangup while waiting for deposit", "cents", agg.Cents(CallerWard))
				return result(StatusHangup), nil
			}
			continue
		}

		var symbols []Symbol
		switch f.Kind {
		case FrameVoice:
			symbols = append(symbols, f.Symbols...)
			if len(f.Samples) > 0 {
				symbols = append(symbols, td.Process(f.Samples)...)
			}
		case FrameDigit:
			symbols = append(symbols, f.Digit)
		}

		var at = f.At
		if at.IsZero() {
			at = time.Now()
		}
		if first.IsZero() {
			first = at
		}

		var res = core.step(CallerWard, symbols, at)
		for _, c := range res.completed {
			logger.Info("coin deposited", "beeps", c.RawHits, "credited", c.Effective, "cents", agg.Cents(CallerWard))
		}
		if res.fire {
			logger.Info("deposit complete", "cents", agg.Cents(CallerWard), "required", opts.Cents)
			return result(StatusSuccess), nil
		}
		if opts.Timeout > 0 && at.Sub(first) >= opts.Timeout {
			return timedOut()
		}
	}
}
