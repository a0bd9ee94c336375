package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Boundary with the host call object.
 *
 * Description:	The host owns the call.  Everything here is borrowed
 *		for the duration of one operation or one frame callback
 *		and is never retained past detach.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FrameKind distinguishes audio from control frames.
type FrameKind int

const (
	FrameNull    FrameKind = iota // No payload.  Used as substitute silence.
	FrameVoice                    // 16 bit signed linear PCM.
	FrameControl                  // See ControlKind.
	FrameDigit                    // Digit already decoded by the host.
)

// ControlKind identifies a control frame.
type ControlKind int

const (
	ControlNone ControlKind = iota
	ControlWink
	ControlHangup
)

// Frame is one unit of the host's audio pipeline.
//
// Symbols carries detections the host has already made on this frame
// (for example from its own DSP).  They are processed in addition to
// anything our own tone detector finds in Samples.
type Frame struct {
	Kind    FrameKind
	Control ControlKind
	Digit   Symbol
	Samples []int16
	Symbols []Symbol
	At      time.Time // Zero means "when it arrived".
}

// Silence turns the frame into a null frame in place.
func (f *Frame) Silence() {
	f.Kind = FrameNull
	f.Samples = nil
	f.Symbols = nil
	f.Digit = SymbolNone
}

// Location is a (context, extension, priority) dialplan position.
// Empty fields / zero priority mean "not specified".
type Location struct {
	Context  string
	Exten    string
	Priority int
}

func (l Location) IsZero() bool {
	return l.Context == "" && l.Exten == "" && l.Priority == 0
}

func (l Location) String() string {
	return fmt.Sprintf("%s,%s,%d", l.Context, l.Exten, l.Priority)
}

// ResolveLocation fills any omitted part of target from current.
func ResolveLocation(target, current Location) Location {
	if target.Context == "" {
		target.Context = current.Context
	}
	if target.Exten == "" {
		target.Exten = current.Exten
	}
	if target.Priority <= 0 {
		target.Priority = current.Priority
	}
	return target
}

/*------------------------------------------------------------------
 *
 * Name:	ParseLocation
 *
 * Purpose:	Parse "[[context,]exten,]priority" the way a dialplan
 *		goto would.
 *
 * Returns:	Location with omitted parts left empty.
 *		Error for a priority that is not a positive number.
 *
 *---------------------------------------------------------------*/

func ParseLocation(s string) (Location, error) {
	var loc Location
	s = strings.TrimSpace(s)
	if s == "" {
		return loc, nil
	}

	var parts = strings.Split(s, ",")
	if len(parts) > 3 {
		return loc, configError("parse location", fmt.Errorf("too many fields in %q", s))
	}

	var prio = strings.TrimSpace(parts[len(parts)-1])
	if prio != "" {
		var n, err = strconv.Atoi(prio)
		if err != nil || n <= 0 {
			return loc, configError("parse location", fmt.Errorf("invalid priority %q", prio))
		}
		loc.Priority = n
	}

	switch len(parts) {
	case 2:
		loc.Exten = strings.TrimSpace(parts[0])
	case 3:
		loc.Context = strings.TrimSpace(parts[0])
		loc.Exten = strings.TrimSpace(parts[1])
	}

	return loc, nil
}

// CallIdentity is the snapshot of caller/call fields attached to events.
type CallIdentity struct {
	Channel           string
	UniqueID          string
	LinkedID          string
	CallerIDNum       string
	CallerIDName      string
	ConnectedLineNum  string
	ConnectedLineName string
	Location          Location
}

// Channel is the host call.
//
// Lock/Unlock is the host's coarse per-call lock.  Attach, detach,
// external reads and frame processing all take it.
//
// Redirect is called with the lock held, so the host must queue the
// transfer rather than perform it synchronously.
type Channel interface {
	sync.Locker

	Name() string
	UniqueID() string

	// Identity reads the live call fields.
	Identity() CallIdentity

	// Location is the current dialplan position.
	Location() Location

	Redirect(Location) error

	// ReadFrame blocks until the next caller-ward frame.
	// It returns ErrHangup once the call is gone.
	ReadFrame(ctx context.Context) (Frame, error)
}
