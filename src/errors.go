package coinsig

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the way callers need to react to them.
type ErrorKind string

const (
	// Bad amount, timeout, delay or disposition.  Rejected before any
	// state is created.
	KindConfiguration ErrorKind = "configuration"

	// Could not allocate detector state, open a wink line, etc.
	KindResource ErrorKind = "resource"

	// Unexpected signaling from the far end.  Logged, never returned
	// from the frame path, but available for callers that want to
	// classify log-worthy conditions.
	KindProtocol ErrorKind = "protocol"

	// The call went away mid-operation.
	KindTermination ErrorKind = "termination"
)

var (
	ErrHangup      = errors.New("channel hung up")
	ErrNotAttached = errors.New("nothing attached to channel")
	ErrNoAudio     = errors.New("no audio output for tones")
)

// Error carries the kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func configError(op string, err error) error {
	return wrapError(KindConfiguration, op, err)
}

// KindOf returns the kind of the first *Error in err's chain.
// A bare ErrHangup is reported as termination.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrHangup) {
		return KindTermination
	}
	return ""
}
