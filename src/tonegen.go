package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Synthesize coin, MF and DTMF tones as 16 bit PCM.
 *
 * Description:	Direct digital synthesis with a 32 bit phase
 *		accumulator per tone.  The upper 8 bits index a sine
 *		table.  Phase carries over between calls so a tone
 *		split across frames has no clicks.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

const TICKS_PER_CYCLE = 256.0 * 256.0 * 256.0 * 256.0

// Coin beep timing.  A nickel is one long beep, a dime two, a quarter
// five short ones.
const (
	COIN_BEEP_MS          = 66
	COIN_GAP_MS           = 60
	COIN_QUARTER_BEEP_MS  = 33
	COIN_QUARTER_GAP_MS   = 33
	COIN_INTERDIGIT_MS    = 300 // Between coins.  Longer than the debounce.
	DIGIT_TONE_MS         = 70
	DIGIT_GAP_MS          = 70
	DEFAULT_AMPLITUDE_PCT = 50
)

// ToneGenerator turns frequencies and durations into samples.
// Not safe for concurrent use.
type ToneGenerator struct {
	rate       int
	sine_table [256]int16
	phase      []uint32
	playing    []float64
}

/*------------------------------------------------------------------
 *
 * Name:        NewToneGenerator
 *
 * Inputs:      rate	- Samples per second.
 *		amp	- Signal amplitude on scale of 0 .. 100.
 *			  Split evenly between simultaneous tones.
 *
 *----------------------------------------------------------------*/

func NewToneGenerator(rate int, amp int) (*ToneGenerator, error) {
	if rate <= 0 {
		return nil, wrapError(KindResource, "new tone generator", fmt.Errorf("invalid sample rate %d", rate))
	}
	if amp <= 0 || amp > 100 {
		return nil, configError("new tone generator", fmt.Errorf("amplitude %d not in 1..100", amp))
	}

	var g = &ToneGenerator{rate: rate}
	for j := 0; j < len(g.sine_table); j++ {
		var a = (float64(j) / 256.0) * (2 * math.Pi)
		var s = int(math.Sin(a) * 32767.0 * float64(amp) / 100.0)
		g.sine_table[j] = int16(s)
	}
	return g, nil
}

func (g *ToneGenerator) SampleRate() int {
	return g.rate
}

// nsamples is the number of samples covering d.
func (g *ToneGenerator) nsamples(d time.Duration) int {
	return int(d.Seconds()*float64(g.rate) + 0.5)
}

// Tones renders freqs played together for d.  A change of frequency
// set restarts the phases.
func (g *ToneGenerator) Tones(freqs []float64, d time.Duration) []int16 {
	var n = g.nsamples(d)
	var out = make([]int16, n)
	if len(freqs) == 0 {
		return out
	}

	if !sameFreqs(freqs, g.playing) {
		g.playing = append(g.playing[:0], freqs...)
		g.phase = make([]uint32, len(freqs))
	}

	var change = make([]uint32, len(freqs))
	for i, f := range freqs {
		change[i] = uint32(f*TICKS_PER_CYCLE/float64(g.rate) + 0.5)
	}

	for j := 0; j < n; j++ {
		var sam int
		for i := range freqs {
			g.phase[i] += change[i]
			sam += int(g.sine_table[(g.phase[i]>>24)&0xff])
		}
		out[j] = int16(sam / len(freqs))
	}
	return out
}

// Silence renders d of nothing and forgets the current tones.
func (g *ToneGenerator) Silence(d time.Duration) []int16 {
	g.playing = g.playing[:0]
	return make([]int16, g.nsamples(d))
}

func sameFreqs(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

/*------------------------------------------------------------------
 *
 * Name:        Coin
 *
 * Purpose:     Render the beeps a payphone sends for one coin.
 *
 * Inputs:	cents	- 5, 10 or 25.
 *		single	- 2200 Hz only instead of 1700+2200.
 *
 * Returns:	Beeps followed by COIN_INTERDIGIT_MS of silence so
 *		that coins rendered back to back are counted apart.
 *
 *----------------------------------------------------------------*/

func (g *ToneGenerator) Coin(cents int, single bool) ([]int16, error) {
	var beeps, on, off int
	switch cents {
	case 5:
		beeps, on, off = 1, COIN_BEEP_MS, COIN_GAP_MS
	case 10:
		beeps, on, off = 2, COIN_BEEP_MS, COIN_GAP_MS
	case 25:
		beeps, on, off = QUARTER_BEEPS, COIN_QUARTER_BEEP_MS, COIN_QUARTER_GAP_MS
	default:
		return nil, configError("render coin", fmt.Errorf("no coin worth %d cents", cents))
	}

	var sym = SymbolCoinDual
	if single {
		sym = SymbolCoinSingle
	}
	var freqs, _ = ToneFrequencies(DetectCoin, sym)

	var out []int16
	for i := 0; i < beeps; i++ {
		out = append(out, g.Tones(freqs, time.Duration(on)*time.Millisecond)...)
		out = append(out, g.Silence(time.Duration(off)*time.Millisecond)...)
	}
	out = append(out, g.Silence(COIN_INTERDIGIT_MS*time.Millisecond)...)
	return out, nil
}

// Digits renders a string of DTMF or MF digits with standard spacing.
func (g *ToneGenerator) Digits(mode DetectMode, digits string) ([]int16, error) {
	var out []int16
	for _, r := range digits {
		var freqs, ok = ToneFrequencies(mode, Symbol(r))
		if !ok {
			return nil, configError("render digits", fmt.Errorf("%q is not a %s digit", r, mode))
		}
		out = append(out, g.Tones(freqs, DIGIT_TONE_MS*time.Millisecond)...)
		out = append(out, g.Silence(DIGIT_GAP_MS*time.Millisecond)...)
	}
	return out, nil
}

// SampleSink accepts rendered audio.
type SampleSink interface {
	PutSamples(samples []int16) error
}

// SampleBuffer collects samples in memory.
type SampleBuffer struct {
	Samples []int16
}

func (b *SampleBuffer) PutSamples(samples []int16) error {
	b.Samples = append(b.Samples, samples...)
	return nil
}

/*------------------------------------------------------------------
 *
 * Name:        PCMTransmitter
 *
 * Purpose:     Render a disposition signal to audio instead of a
 *		live line.
 *
 * Description:	Acts as both the Transmitter and the Pacer of a
 *		Sequencer.  Time only advances in Pause, which writes
 *		whatever is playing, or silence, to the sink.
 *
 *		A wink has no audio of its own.  It is recorded in
 *		Winks and, if WinkHz is set, rendered as a tone for
 *		the hold time so that a recording carries it in band.
 *
 *----------------------------------------------------------------*/

type PCMTransmitter struct {
	gen    *ToneGenerator
	sink   SampleSink
	WinkHz float64

	tones     []float64
	winkUntil time.Duration
	elapsed   time.Duration
	winks     []time.Duration
	logger    *log.Logger
}

func NewPCMTransmitter(gen *ToneGenerator, sink SampleSink, logger *log.Logger) *PCMTransmitter {
	return &PCMTransmitter{gen: gen, sink: sink, logger: loggerOr(logger)}
}

func (p *PCMTransmitter) Wink(hold time.Duration) error {
	p.winks = append(p.winks, p.elapsed)
	p.winkUntil = p.elapsed + hold
	p.logger.Debug("wink", "at", p.elapsed, "hold", hold)
	return nil
}

func (p *PCMTransmitter) PlayTones(freqs []float64) error {
	p.tones = append(p.tones[:0], freqs...)
	p.logger.Debug("tones on", "at", p.elapsed, "freqs", freqs)
	return nil
}

func (p *PCMTransmitter) StopTones() error {
	p.tones = p.tones[:0]
	p.logger.Debug("tones off", "at", p.elapsed)
	return nil
}

func (p *PCMTransmitter) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for d > 0 {
		var span = d
		var freqs = p.tones
		if p.WinkHz > 0 && p.elapsed < p.winkUntil {
			// In-band wink takes over until its hold time ends.
			if p.winkUntil-p.elapsed < span {
				span = p.winkUntil - p.elapsed
			}
			freqs = []float64{p.WinkHz}
		}

		var samples []int16
		if len(freqs) > 0 {
			samples = p.gen.Tones(freqs, span)
		} else {
			samples = p.gen.Silence(span)
		}
		if err := p.sink.PutSamples(samples); err != nil {
			return wrapError(KindResource, "render signal", err)
		}
		p.elapsed += span
		d -= span
	}
	return nil
}

// Elapsed is the amount of audio rendered so far.
func (p *PCMTransmitter) Elapsed() time.Duration {
	return p.elapsed
}

// Winks are the offsets at which winks were sent.
func (p *PCMTransmitter) Winks() []time.Duration {
	return p.winks
}
