package coinsig

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FRAME_MS is the audio frame length served by PCMChannel.
const FRAME_MS = 20

// PCMChannel is a Channel whose caller-ward audio is a recording.
// Frames are FRAME_MS long and stamped with recording time from
// Start.  At the end of the audio the call hangs up.
type PCMChannel struct {
	mu sync.Mutex

	name     string
	uniqueID string
	rate     int
	samples  []int16
	pos      int
	start    time.Time

	identity  CallIdentity
	location  Location
	redirects []Location
}

func NewPCMChannel(name string, rate int, samples []int16, start time.Time) *PCMChannel {
	var id = uuid.NewString()
	return &PCMChannel{
		name:     name,
		uniqueID: id,
		rate:     rate,
		samples:  samples,
		start:    start,
		identity: CallIdentity{Channel: name, UniqueID: id, LinkedID: id},
	}
}

func (c *PCMChannel) Lock()   { c.mu.Lock() }
func (c *PCMChannel) Unlock() { c.mu.Unlock() }

func (c *PCMChannel) Name() string     { return c.name }
func (c *PCMChannel) UniqueID() string { return c.uniqueID }

// SetIdentity replaces the caller fields.  Channel and UniqueID are kept.
func (c *PCMChannel) SetIdentity(id CallIdentity) {
	id.Channel = c.name
	id.UniqueID = c.uniqueID
	if id.LinkedID == "" {
		id.LinkedID = c.uniqueID
	}
	c.identity = id
}

func (c *PCMChannel) SetLocation(l Location) {
	c.location = l
}

func (c *PCMChannel) Identity() CallIdentity {
	var id = c.identity
	id.Location = c.location
	return id
}

func (c *PCMChannel) Location() Location {
	return c.location
}

// Redirect records the target and moves the call there.
func (c *PCMChannel) Redirect(l Location) error {
	c.redirects = append(c.redirects, l)
	c.location = l
	return nil
}

// Redirects returns the targets of every redirect so far.
func (c *PCMChannel) Redirects() []Location {
	return c.redirects
}

func (c *PCMChannel) frameSamples() int {
	return c.rate * FRAME_MS / 1000
}

// ReadFrame returns the next voice frame.  The last frame is zero
// padded.
func (c *PCMChannel) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if c.pos >= len(c.samples) {
		return Frame{}, ErrHangup
	}

	var n = c.frameSamples()
	var f = Frame{
		Kind:    FrameVoice,
		Samples: make([]int16, n),
		At:      c.start.Add(time.Duration(c.pos) * time.Second / time.Duration(c.rate)),
	}
	copy(f.Samples, c.samples[c.pos:])
	c.pos += n
	return f, nil
}
