package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Send winks on real hardware.
 *
 * Description:	A wink is a brief reversal of the line state.  On a
 *		test bench or channel bank interface it is usually
 *		wired to a serial port control line (RTS or DTR) or a
 *		GPIO pin driving a relay.
 *
 *		Normally higher voltage means winked.  Invert if the
 *		interface needs the opposite.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// WinkLine is one output that can be asserted.
type WinkLine interface {
	Set(on bool) error
	Close() error
}

// gpioOutputLine is the part of *gpiocdev.Line we use.
type gpioOutputLine interface {
	SetValue(value int) error
	Close() error
}

// GPIOWinkLine drives a GPIO character device line.
type GPIOWinkLine struct {
	line   gpioOutputLine
	invert bool
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenGPIOWinkLine
 *
 * Inputs:	chip	- e.g. gpiochip0 or /dev/gpiochip0.
 *		offset	- Line number on that chip.
 *		invert	- Drive low for a wink.
 *
 * Description:	The line is requested as an output in the idle state.
 *
 *--------------------------------------------------------------------*/

func OpenGPIOWinkLine(chip string, offset int, invert bool) (*GPIOWinkLine, error) {
	var idle = 0
	if invert {
		idle = 1
	}
	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(idle), gpiocdev.WithConsumer("coinsig"))
	if err != nil {
		return nil, wrapError(KindResource, "open wink line", fmt.Errorf("GPIO %s line %d: %w", chip, offset, err))
	}
	return &GPIOWinkLine{line: line, invert: invert}, nil
}

func (g *GPIOWinkLine) Set(on bool) error {
	if g.line == nil {
		return nil
	}
	var v = 0
	if on != g.invert {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *GPIOWinkLine) Close() error {
	if g.line == nil {
		return nil
	}
	var err = g.line.Close()
	g.line = nil
	return err
}

// Serial port control lines.
const (
	SerialRTS = unix.TIOCM_RTS
	SerialDTR = unix.TIOCM_DTR
)

// ParseSerialLine accepts RTS or DTR, optionally with a leading minus
// for inverted.
func ParseSerialLine(s string) (line int, invert bool, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(s, "-") {
		invert = true
		s = s[1:]
	}
	switch s {
	case "RTS":
		return SerialRTS, invert, nil
	case "DTR":
		return SerialDTR, invert, nil
	}
	return 0, false, configError("parse serial line", fmt.Errorf("%q is not RTS or DTR", s))
}

// SerialWinkLine drives RTS or DTR of a serial port.
type SerialWinkLine struct {
	f      *os.File
	line   int
	invert bool
}

func OpenSerialWinkLine(device string, line int, invert bool) (*SerialWinkLine, error) {
	var f, err = os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, wrapError(KindResource, "open wink line", err)
	}
	var s = &SerialWinkLine{f: f, line: line, invert: invert}
	if err := s.Set(false); err != nil {
		f.Close()
		return nil, wrapError(KindResource, "open wink line", err)
	}
	return s, nil
}

func (s *SerialWinkLine) Set(on bool) error {
	return _TIOCM(int(s.f.Fd()), s.line, on != s.invert)
}

func (s *SerialWinkLine) Close() error {
	return s.f.Close()
}

func _TIOCM(fd int, value int, on bool) error {
	var stuff, err = unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return err
	}
	if on {
		stuff |= value
	} else {
		stuff &= ^value
	}
	return unix.IoctlSetInt(fd, unix.TIOCMSET, stuff)
}

/*-------------------------------------------------------------------
 *
 * Name:        LineTransmitter
 *
 * Purpose:     Transmitter for a real interface.
 *
 * Description:	Winks go to the line.  The line is released after the
 *		hold time by a timer so Wink does not block.  Tones go
 *		to Audio.  Without Audio only multi-wink can be sent.
 *
 *--------------------------------------------------------------------*/

type LineTransmitter struct {
	Line   WinkLine
	Audio  Transmitter
	Logger *log.Logger

	mu      sync.Mutex
	release *time.Timer
	pulse   int // Identifies the current wink, so a stale timer is ignored.
}

func (t *LineTransmitter) Wink(hold time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.release != nil {
		t.release.Stop()
	}
	if err := t.Line.Set(true); err != nil {
		return wrapError(KindResource, "wink", err)
	}
	t.pulse++
	var pulse = t.pulse
	t.release = time.AfterFunc(hold, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if pulse != t.pulse {
			return
		}
		if err := t.Line.Set(false); err != nil {
			loggerOr(t.Logger).Error("could not release wink line", "err", err)
		}
	})
	return nil
}

// CanPlayTones reports whether an audio output is attached.
func (t *LineTransmitter) CanPlayTones() bool {
	return t.Audio != nil
}

func (t *LineTransmitter) PlayTones(freqs []float64) error {
	if t.Audio == nil {
		return wrapError(KindResource, "play tones", ErrNoAudio)
	}
	return t.Audio.PlayTones(freqs)
}

func (t *LineTransmitter) StopTones() error {
	if t.Audio == nil {
		return nil
	}
	return t.Audio.StopTones()
}

// Close releases the line immediately and closes it.
func (t *LineTransmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.release != nil {
		t.release.Stop()
		t.release = nil
	}
	t.pulse++
	t.Line.Set(false) //nolint:errcheck
	return t.Line.Close()
}
