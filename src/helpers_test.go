package coinsig

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeChannel is a host call fed from a channel of frames.
type fakeChannel struct {
	mu sync.Mutex

	name      string
	id        CallIdentity
	location  Location
	frames    chan Frame
	redirects []Location
	redirErr  error
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{
		name:     name,
		id:       CallIdentity{Channel: name, UniqueID: name + "-uid", CallerIDNum: "5551234"},
		location: Location{Context: "payphone", Exten: "s", Priority: 3},
		frames:   make(chan Frame, 1000),
	}
}

func (c *fakeChannel) Lock()            { c.mu.Lock() }
func (c *fakeChannel) Unlock()          { c.mu.Unlock() }
func (c *fakeChannel) Name() string     { return c.name }
func (c *fakeChannel) UniqueID() string { return c.id.UniqueID }
func (c *fakeChannel) Location() Location {
	return c.location
}

func (c *fakeChannel) Identity() CallIdentity {
	var id = c.id
	id.Location = c.location
	return id
}

func (c *fakeChannel) Redirect(l Location) error {
	c.redirects = append(c.redirects, l)
	return c.redirErr
}

// ReadFrame returns queued frames; a closed queue is a hangup.
func (c *fakeChannel) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return Frame{}, ErrHangup
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// frameClock hands out frame times 20 ms apart.
type frameClock struct {
	now time.Time
}

func (c *frameClock) next() time.Time {
	c.now = c.now.Add(FRAME_MS * time.Millisecond)
	return c.now
}

// beepFrames returns frames carrying a coin symbol on every other
// frame, n beeps in all.  The last frame is the one on which the coin
// completes.
func beepFrames(clock *frameClock, n int) []Frame {
	var out []Frame
	for i := 0; i < n; i++ {
		out = append(out, Frame{Kind: FrameVoice, Symbols: []Symbol{SymbolCoinDual}, At: clock.next()})
		out = append(out, Frame{Kind: FrameVoice, At: clock.next()})
	}
	// The last beep frame and the gap after it tick once each.
	for i := 0; i < DEBOUNCE_TICKS-1; i++ {
		out = append(out, Frame{Kind: FrameVoice, At: clock.next()})
	}
	return out
}
