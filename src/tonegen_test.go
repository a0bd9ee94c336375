package coinsig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_toneGeneratorPhaseCarriesOver(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var rate = rapid.SampledFrom([]int{8000, 16000, 48000}).Draw(t, "rate")
		var f = rapid.Float64Range(300, 3000).Draw(t, "hz")
		var split = rapid.IntRange(1, 99).Draw(t, "split")

		var whole = newTestGenerator(t, rate).Tones([]float64{f}, 100*time.Millisecond)

		var g = newTestGenerator(t, rate)
		var parts = g.Tones([]float64{f}, time.Duration(split)*time.Millisecond)
		parts = append(parts, g.Tones([]float64{f}, time.Duration(100-split)*time.Millisecond)...)

		require.Len(t, parts, len(whole))
		assert.Equal(t, whole, parts)
	})
}

func Test_toneGeneratorAmplitude(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var amp = rapid.IntRange(1, 100).Draw(t, "amp")
		var g, err = NewToneGenerator(8000, amp)
		require.NoError(t, err)

		var limit = 32767 * amp / 100
		for _, s := range g.Tones([]float64{700, 900}, 50*time.Millisecond) {
			if int(s) > limit || int(s) < -limit {
				t.Fatalf("sample %d exceeds %d", s, limit)
			}
		}
	})
}

func Test_toneGeneratorLengths(t *testing.T) {
	var g = newTestGenerator(t, 8000)
	assert.Len(t, g.Silence(20*time.Millisecond), 160)
	assert.Len(t, g.Tones(nil, 20*time.Millisecond), 160)

	var nickel, err = g.Coin(5, false)
	require.NoError(t, err)
	assert.Len(t, nickel, 8*(COIN_BEEP_MS+COIN_GAP_MS+COIN_INTERDIGIT_MS))

	var quarter, qerr = g.Coin(25, true)
	require.NoError(t, qerr)
	assert.Len(t, quarter, 8*(QUARTER_BEEPS*(COIN_QUARTER_BEEP_MS+COIN_QUARTER_GAP_MS)+COIN_INTERDIGIT_MS))
}

func Test_toneGeneratorErrors(t *testing.T) {
	var _, err = NewToneGenerator(0, 50)
	assert.Equal(t, KindResource, KindOf(err))
	_, err = NewToneGenerator(8000, 0)
	assert.Equal(t, KindConfiguration, KindOf(err))
	_, err = NewToneGenerator(8000, 101)
	assert.Equal(t, KindConfiguration, KindOf(err))

	var g = newTestGenerator(t, 8000)
	_, err = g.Coin(7, false)
	assert.Equal(t, KindConfiguration, KindOf(err))
	_, err = g.Digits(DetectMF, "12X")
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func Test_pcmTransmitterRendersEIS(t *testing.T) {
	for _, d := range Dispositions {
		var g = newTestGenerator(t, 8000)
		var out SampleBuffer
		var p = NewPCMTransmitter(g, &out, quietLogger())
		var seq = Sequencer{Pacer: p, Logger: quietLogger()}

		require.NoError(t, seq.Signal(t.Context(), p, d, StyleEIS, false), d.Name())

		assert.Equal(t, (EIS_SETTLE_MS+EIS_DIGIT_MS)*time.Millisecond, p.Elapsed())
		assert.Len(t, out.Samples, 8*(EIS_SETTLE_MS+EIS_DIGIT_MS))
		assert.Equal(t, []time.Duration{0}, p.Winks())

		var got = detect(t, ToneDetectorOptions{SampleRate: 8000, Mode: DetectMF}, out.Samples)
		assert.Equal(t, string(rune(d.Symbol())), symbolString(got), d.Name())
	}
}

func Test_pcmTransmitterRendersLegacy(t *testing.T) {
	var g = newTestGenerator(t, 8000)
	var out SampleBuffer
	var p = NewPCMTransmitter(g, &out, quietLogger())
	var seq = Sequencer{Pacer: p, Logger: quietLogger()}

	require.NoError(t, seq.Signal(t.Context(), p, CoinCollect, StyleLegacy, true))

	var pulses, _ = CoinCollect.PulseCount()
	require.Len(t, p.Winks(), pulses)
	var gap = WINK_GAP_SHORT_MS
	if pulses >= 3 {
		gap = WINK_GAP_LONG_MS
	}
	for i, at := range p.Winks() {
		assert.Equal(t, time.Duration(i*(WINK_PULSE_MS+gap))*time.Millisecond, at)
	}

	// Winks without WinkHz leave no trace in the audio.
	for _, s := range out.Samples {
		require.Zero(t, s)
	}
}

func Test_pcmTransmitterInBandWink(t *testing.T) {
	var g = newTestGenerator(t, 8000)
	var out SampleBuffer
	var p = NewPCMTransmitter(g, &out, quietLogger())
	p.WinkHz = PRIMER_TONE
	var seq = Sequencer{Pacer: p, Logger: quietLogger()}

	require.NoError(t, seq.Signal(t.Context(), p, CoinReturn, StyleEIS, false))
	require.Len(t, out.Samples, 8*(EIS_SETTLE_MS+EIS_DIGIT_MS))

	var loud = func(s []int16) bool {
		for _, v := range s {
			if v > 1000 || v < -1000 {
				return true
			}
		}
		return false
	}
	assert.True(t, loud(out.Samples[:8*WINK_PULSE_MS]), "wink tone")
	assert.False(t, loud(out.Samples[8*WINK_PULSE_MS:8*EIS_SETTLE_MS]), "quiet until the digit")
	assert.True(t, loud(out.Samples[8*EIS_SETTLE_MS:]), "digit")
}

type failingSink struct{}

func (failingSink) PutSamples([]int16) error { return errors.New("disk full") }

func Test_pcmTransmitterPauseErrors(t *testing.T) {
	var g = newTestGenerator(t, 8000)
	var p = NewPCMTransmitter(g, failingSink{}, quietLogger())
	assert.Equal(t, KindResource, KindOf(p.Pause(t.Context(), time.Millisecond)))

	var ctx, cancel = context.WithCancel(t.Context())
	cancel()
	var ok = NewPCMTransmitter(g, &SampleBuffer{}, quietLogger())
	assert.ErrorIs(t, ok.Pause(ctx, time.Second), context.Canceled)
	assert.Zero(t, ok.Elapsed())
}
