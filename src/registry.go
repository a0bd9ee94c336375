package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Keep track of what is attached to each call.
 *
 * Description:	A call can have a deposit detector, an EIS receiver,
 *		both or neither.  They come and go independently and
 *		never affect the call itself.
 *
 *		Lock order is always channel, then registry.  Attach,
 *		detach, reads and frame processing all hold the
 *		channel lock, so a frame never sees a half built or
 *		half removed attachment.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type attachment struct {
	detector *DepositDetector
	eis      *WinkCorrelator
}

func (a *attachment) empty() bool {
	return a.detector == nil && a.eis == nil
}

// Registry holds per-call attachments, keyed by the call's unique ID.
type Registry struct {
	mu     sync.Mutex
	calls  map[string]*attachment
	sink   EventSink
	logger *log.Logger
}

// NewRegistry creates an empty registry.  Events go to sink, which
// may be nil.
func NewRegistry(sink EventSink, logger *log.Logger) *Registry {
	return &Registry{
		calls:  make(map[string]*attachment),
		sink:   sink,
		logger: loggerOr(logger),
	}
}

// lookup must be called with the channel locked.
func (r *Registry) lookup(ch Channel) *attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ch.UniqueID()]
}

// update must be called with the channel locked.
func (r *Registry) update(ch Channel, fn func(a *attachment) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id = ch.UniqueID()
	var a = r.calls[id]
	if a == nil {
		a = new(attachment)
	}
	if err := fn(a); err != nil {
		return err
	}
	if a.empty() {
		delete(r.calls, id)
	} else {
		r.calls[id] = a
	}
	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	AttachDetector
 *
 * Purpose:	Start counting coin deposits on a call.
 *
 * Returns:	KindConfiguration for bad options or if a detector is
 *		already attached.  KindResource if detector state could
 *		not be created.  Nothing is left attached on error.
 *
 *---------------------------------------------------------------*/

func (r *Registry) AttachDetector(ch Channel, opts DetectorOptions) error {
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	ch.Lock()
	defer ch.Unlock()

	if a := r.lookup(ch); a != nil && a.detector != nil {
		return configError("attach detector", fmt.Errorf("detector already attached to %s", ch.Name()))
	}

	var d, err = newDepositDetector(ch.Location(), opts)
	if err != nil {
		return err
	}

	err = r.update(ch, func(a *attachment) error {
		a.detector = d
		return nil
	})
	if err == nil {
		r.logger.Debug("deposit detector attached", "channel", ch.Name(), "required", opts.RequiredNickels, "grace", opts.Grace)
	}
	return err
}

// DetachDetector stops counting.  ErrNotAttached if there was no detector.
func (r *Registry) DetachDetector(ch Channel) error {
	ch.Lock()
	defer ch.Unlock()

	return r.update(ch, func(a *attachment) error {
		if a.detector == nil {
			return ErrNotAttached
		}
		a.detector = nil
		r.logger.Debug("deposit detector removed", "channel", ch.Name())
		return nil
	})
}

// ReadDeposit returns the cents deposited in dir, zero if no detector
// has been attached.
func (r *Registry) ReadDeposit(ch Channel, dir Direction) int {
	ch.Lock()
	defer ch.Unlock()

	var a = r.lookup(ch)
	if a == nil || a.detector == nil {
		return 0
	}
	return a.detector.Cents(dir)
}

// EISOptions configures ArmEIS.
type EISOptions struct {
	// Leg carrying the far end's signaling.
	Watched Direction

	// Run our own MF detector on voice frames.  Without it only
	// digits the host decodes itself are seen.
	DetectMF bool

	// Treat a sustained in-band priming tone as a wink.  For
	// recordings, where the out-of-band wink is lost.
	PrimerAsWink bool
	PrimerHz     float64

	// Zero means DEFAULT_SAMPLE_RATE.
	SampleRate int

	// Zero means EIS_WINDOW.
	Window time.Duration
}

/*------------------------------------------------------------------
 *
 * Name:	ArmEIS
 *
 * Purpose:	Start listening for EIS dispositions on a call leg.
 *
 * Description:	Each accepted disposition is published as an event
 *		with a snapshot of the call identity taken at that
 *		moment.
 *
 *---------------------------------------------------------------*/

func (r *Registry) ArmEIS(ch Channel, opts EISOptions) error {
	if opts.Watched < 0 || opts.Watched >= numDirections {
		return configError("arm EIS", fmt.Errorf("invalid direction %d", opts.Watched))
	}
	if opts.Window < 0 {
		return configError("arm EIS", fmt.Errorf("invalid window %s", opts.Window))
	}

	var mf ToneDetector
	if opts.DetectMF || opts.PrimerAsWink {
		var rate = opts.SampleRate
		if rate == 0 {
			rate = DEFAULT_SAMPLE_RATE
		}
		var err error
		mf, err = NewToneDetector(ToneDetectorOptions{
			SampleRate: rate,
			Mode:       DetectMF,
			Primer:     opts.PrimerAsWink,
			PrimerHz:   opts.PrimerHz,
		})
		if err != nil {
			return err
		}
	}

	ch.Lock()
	defer ch.Unlock()

	if a := r.lookup(ch); a != nil && a.eis != nil {
		return configError("arm EIS", fmt.Errorf("EIS already armed on %s", ch.Name()))
	}

	var w = NewWinkCorrelator(WinkCorrelatorOptions{
		Watched: opts.Watched,
		MF:      mf,
		Window:  opts.Window,
		Logger:  r.logger.With("channel", ch.Name()),
		OnDisposition: func(d Disposition, at time.Time) {
			r.publishDisposition(ch, d, at)
		},
	})

	var err = r.update(ch, func(a *attachment) error {
		a.eis = w
		return nil
	})
	if err == nil {
		r.logger.Debug("EIS armed", "channel", ch.Name(), "watching", opts.Watched)
	}
	return err
}

// DisarmEIS stops listening.  ErrNotAttached if it was not armed.
func (r *Registry) DisarmEIS(ch Channel) error {
	ch.Lock()
	defer ch.Unlock()

	return r.update(ch, func(a *attachment) error {
		if a.eis == nil {
			return ErrNotAttached
		}
		a.eis = nil
		r.logger.Debug("EIS disarmed", "channel", ch.Name())
		return nil
	})
}

// publishDisposition runs inside frame processing with the channel
// locked, so the identity read here is consistent with the frame.
func (r *Registry) publishDisposition(ch Channel, d Disposition, at time.Time) {
	if r.sink == nil {
		return
	}
	var id = ch.Identity()
	var ev = newEvent(EventDisposition, ch.Name(), at)
	ev.Disposition = d.String()
	ev.Identity = &id
	r.sink.Publish(ev)
}

/*------------------------------------------------------------------
 *
 * Name:	ProcessFrame
 *
 * Purpose:	Audio path hook.  The host calls this for every frame
 *		in both directions.
 *
 * Inputs:	ch	- The call.  Must not already be locked.
 *		dir	- Direction the frame is travelling.
 *		f	- The frame.  May be rewritten to silence while
 *			  an EIS window is open.  A zero At is set to the
 *			  time of arrival.
 *
 * Description:	Never blocks beyond the channel lock and never fails.
 *
 *---------------------------------------------------------------*/

func (r *Registry) ProcessFrame(ch Channel, dir Direction, f *Frame) {
	if f == nil {
		return
	}
	if f.At.IsZero() {
		f.At = time.Now()
	}

	ch.Lock()
	defer ch.Unlock()

	var a = r.lookup(ch)
	if a == nil {
		return
	}

	// Coins first, on the audio as it arrived.
	if a.detector != nil {
		a.detector.handleFrame(ch, dir, f, r.sink)
	}
	if a.eis != nil {
		a.eis.HandleFrame(dir, f)
	}
}

// Forget drops everything attached to a call that has ended.
func (r *Registry) Forget(ch Channel) {
	ch.Lock()
	defer ch.Unlock()

	r.mu.Lock()
	delete(r.calls, ch.UniqueID())
	r.mu.Unlock()
}

// Attached reports what is attached to ch.
func (r *Registry) Attached(ch Channel) (detector, eis bool) {
	ch.Lock()
	defer ch.Unlock()

	var a = r.lookup(ch)
	if a == nil {
		return false, false
	}
	return a.detector != nil, a.eis != nil
}

// IsNotAttached reports whether err came from detaching something absent.
func IsNotAttached(err error) bool {
	return errors.Is(err, ErrNotAttached)
}
