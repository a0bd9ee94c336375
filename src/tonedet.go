package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:   	Tone detector for DTMF, MF and coin deposit tones.
 *
 * Description: This uses the Goertzel Algorithm for tone detection.
 *		Audio is processed in fixed size blocks.  At the end
 *		of each block the tone magnitudes are classified into
 *		a symbol, and a symbol is reported once when it first
 *		becomes stable.
 *
 * References:	http://eetimes.com/design/embedded/4024443/The-Goertzel-Algorithm
 *		http://www.ti.com/ww/cn/uprogram/share/ppt/c5000/17dtmf_v13.ppt
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DetectMode selects the tone set a detector listens for.
type DetectMode int

const (
	DetectDTMF DetectMode = iota
	DetectMF              // R1 multi-frequency, as used by EIS.
	DetectCoin            // Coin deposit tones.
)

func (m DetectMode) String() string {
	switch m {
	case DetectDTMF:
		return "dtmf"
	case DetectMF:
		return "mf"
	case DetectCoin:
		return "coin"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

var DTMF_TONES = [8]float64{697, 770, 852, 941, 1209, 1336, 1477, 1633}

var dtmfRC2Char = [16]Symbol{
	'1', '2', '3', 'A',
	'4', '5', '6', 'B',
	'7', '8', '9', 'C',
	'*', '0', '#', 'D',
}

var MF_TONES = [6]float64{700, 900, 1100, 1300, 1500, 1700}

// Pairs of MF_TONES indexes, lower first.
var mfPairs = map[Symbol][2]int{
	'1': {0, 1},
	'2': {0, 2},
	'3': {1, 2},
	'4': {0, 3},
	'5': {1, 3},
	'6': {2, 3},
	'7': {0, 4},
	'8': {1, 4},
	'9': {2, 4},
	'0': {3, 4},
	'*': {2, 5}, // KP
	'#': {4, 5}, // ST
	'A': {1, 5}, // STP
	'B': {3, 5}, // ST2P
	'C': {0, 5}, // ST3P
}

var mfPair2Char = func() map[[2]int]Symbol {
	var m = make(map[[2]int]Symbol, len(mfPairs))
	for s, p := range mfPairs {
		m[p] = s
	}
	return m
}()

const (
	COIN_TONE_LOW  = 1700.0
	COIN_TONE_HIGH = 2200.0
)

// Default in-band EIS priming tone.
const PRIMER_TONE = 2600.0

// ToneFrequencies returns the frequencies that make up a DTMF or MF digit.
func ToneFrequencies(mode DetectMode, s Symbol) ([]float64, bool) {
	switch mode {
	case DetectMF:
		var p, ok = mfPairs[s]
		if !ok {
			return nil, false
		}
		return []float64{MF_TONES[p[0]], MF_TONES[p[1]]}, true
	case DetectDTMF:
		for i, c := range dtmfRC2Char {
			if c == s {
				return []float64{DTMF_TONES[i/4], DTMF_TONES[4+i%4]}, true
			}
		}
	case DetectCoin:
		if s == SymbolCoinDual {
			return []float64{COIN_TONE_LOW, COIN_TONE_HIGH}, true
		}
		if s == SymbolCoinSingle {
			return []float64{COIN_TONE_HIGH}, true
		}
	}
	return nil, false
}

// ToneDetector turns PCM into symbols.  It keeps state across calls
// so a tone may span any number of frames.
type ToneDetector interface {
	Process(samples []int16) []Symbol
	Reset()
}

// ToneDetectorOptions configures NewToneDetector.
type ToneDetectorOptions struct {
	SampleRate int // Samples per sec.  Typ. 8000.
	Mode       DetectMode

	// Lower thresholds and accept a tone after a single block.
	Relaxed bool

	// Coin mode only: listen for 2200 Hz alone instead of 1700+2200.
	SingleFrequency bool

	// MF mode only: also report a sustained priming tone as SymbolPrimer.
	Primer   bool
	PrimerHz float64
}

// Minimum mean square of a block for anything to be considered.
// About -50 dBFS.
const (
	MIN_BLOCK_POWER         = 10000.0
	MIN_BLOCK_POWER_RELAXED = 2500.0
)

// One tone must be this much stronger than the sum of the others in
// its group.  From the DTMF decoder; 1.33 is very sensitive, 2.15 very fussy.
const (
	GROUP_THRESHOLD         = 1.74
	GROUP_THRESHOLD_RELAXED = 1.5
)

// Fraction of the block energy each tone of a pair must carry.
// A pure pair of equal tones scores 0.5 each.
const (
	PAIR_SHARE         = 0.25
	PAIR_SHARE_RELAXED = 0.15
)

// Primer must be present this long before it is reported.
const PRIMER_MIN_MS = 200

type goertzelDetector struct {
	opts       ToneDetectorOptions
	freqs      []float64
	block_size int
	coef       []float64

	n     int
	Q1    []float64
	Q2    []float64
	block []float64

	// Per-block results, reused.
	output []float64
	share  []float64

	prev_dec       Symbol
	debounced      Symbol
	prev_debounced Symbol

	primer_idx      int // Index into freqs, -1 if not listening.
	primer_blocks   int
	primer_needed   int
	primer_reported bool
}

/*------------------------------------------------------------------
 *
 * Name:        NewToneDetector
 *
 * Purpose:     Set up a decoder for one direction of one call.
 *
 * Description: Pick a suitable processing block size.
 *		Larger = narrower bandwidth, slower response.
 *		Coin beeps can be as short as 33 ms so that mode
 *		uses blocks of half the usual size.
 *
 *----------------------------------------------------------------*/

func NewToneDetector(opts ToneDetectorOptions) (ToneDetector, error) {
	if opts.SampleRate <= 0 {
		return nil, wrapError(KindResource, "new tone detector", fmt.Errorf("invalid sample rate %d", opts.SampleRate))
	}

	var D = &goertzelDetector{opts: opts, primer_idx: -1}

	switch opts.Mode {
	case DetectDTMF:
		D.freqs = append(D.freqs, DTMF_TONES[:]...)
		D.block_size = (205 * opts.SampleRate) / 8000
	case DetectMF:
		D.freqs = append(D.freqs, MF_TONES[:]...)
		D.block_size = (205 * opts.SampleRate) / 8000
		if opts.Primer {
			var hz = opts.PrimerHz
			if hz <= 0 {
				hz = PRIMER_TONE
			}
			D.primer_idx = len(D.freqs)
			D.freqs = append(D.freqs, hz)
		}
	case DetectCoin:
		D.freqs = []float64{COIN_TONE_LOW, COIN_TONE_HIGH}
		D.block_size = (102 * opts.SampleRate) / 8000
	default:
		return nil, wrapError(KindResource, "new tone detector", fmt.Errorf("unknown mode %d", opts.Mode))
	}

	if D.block_size < 16 {
		return nil, wrapError(KindResource, "new tone detector", fmt.Errorf("sample rate %d too low", opts.SampleRate))
	}

	for _, f := range D.freqs {
		if f >= float64(opts.SampleRate)/2 {
			return nil, wrapError(KindResource, "new tone detector", fmt.Errorf("%.0f Hz is above Nyquist for %d samples/sec", f, opts.SampleRate))
		}
	}

	// Don't round k to an integer.  That would move the filter
	// center frequency away from ideal.
	D.coef = make([]float64, len(D.freqs))
	for j, f := range D.freqs {
		var k = float64(D.block_size) * f / float64(opts.SampleRate)
		D.coef[j] = 2.0 * math.Cos(2.0*math.Pi*k/float64(D.block_size))
	}

	D.Q1 = make([]float64, len(D.freqs))
	D.Q2 = make([]float64, len(D.freqs))
	D.block = make([]float64, 0, D.block_size)
	D.output = make([]float64, len(D.freqs))
	D.share = make([]float64, len(D.freqs))

	var block_ms = 1000.0 * float64(D.block_size) / float64(opts.SampleRate)
	D.primer_needed = int(math.Ceil(PRIMER_MIN_MS / block_ms))

	D.Reset()
	return D, nil
}

func (D *goertzelDetector) Reset() {
	D.n = 0
	for j := range D.Q1 {
		D.Q1[j] = 0
		D.Q2[j] = 0
	}
	D.block = D.block[:0]
	D.prev_dec = SymbolNone
	D.debounced = SymbolNone
	D.prev_debounced = SymbolNone
	D.primer_blocks = 0
	D.primer_reported = false
}

func (D *goertzelDetector) Process(samples []int16) []Symbol {
	var out []Symbol
	for _, s := range samples {
		var sym = D.sample(float64(s))
		if sym != SymbolNone {
			out = append(out, sym)
		}
	}
	return out
}

/*------------------------------------------------------------------
 *
 * Name:        sample
 *
 * Purpose:     Process one audio sample.
 *
 * Returns:     A symbol when one first becomes stable.
 *		SymbolNone otherwise.
 *
 *----------------------------------------------------------------*/

func (D *goertzelDetector) sample(input float64) Symbol {
	for i := range D.freqs {
		var Q0 = input + D.Q1[i]*D.coef[i] - D.Q2[i]
		D.Q2[i] = D.Q1[i]
		D.Q1[i] = Q0
	}
	D.block = append(D.block, input)

	D.n++
	if D.n < D.block_size {
		return SymbolNone
	}

	var output = D.output
	for i := range D.freqs {
		var p = D.Q1[i]*D.Q1[i] + D.Q2[i]*D.Q2[i] - D.Q1[i]*D.Q2[i]*D.coef[i]
		if p < 0 {
			p = 0
		}
		output[i] = math.Sqrt(p)
		D.Q1[i] = 0
		D.Q2[i] = 0
	}

	// Energy of a pure tone of amplitude A over N samples is N*A*A/2
	// and its Goertzel magnitude is A*N/2, so share = mag^2 / (N*energy/2)
	// comes out as 1 for a single clean tone.
	var energy = floats.Dot(D.block, D.block)
	var N = float64(D.n)
	D.n = 0
	D.block = D.block[:0]

	var share = D.share
	for i, m := range output {
		share[i] = 0
		if energy > 0 {
			share[i] = m * m / (N * energy / 2)
		}
	}

	var min_power = MIN_BLOCK_POWER
	if D.opts.Relaxed {
		min_power = MIN_BLOCK_POWER_RELAXED
	}
	var loud = energy/N >= min_power

	var decoded = SymbolNone
	if loud {
		switch D.opts.Mode {
		case DetectDTMF:
			decoded = D.classifyDTMF(output, share)
		case DetectMF:
			decoded = D.classifyMF(output, share)
		case DetectCoin:
			decoded = D.classifyCoin(share)
		}
	}

	var primer = D.checkPrimer(loud, share)

	// Consider valid only if we get same twice in a row.
	// Relaxed mode takes the first block.
	if decoded == D.prev_dec || D.opts.Relaxed {
		D.debounced = decoded
	}
	D.prev_dec = decoded

	// Return only new tones.
	var ret = SymbolNone
	if D.debounced != D.prev_debounced && D.debounced != SymbolNone {
		ret = D.debounced
	}
	D.prev_debounced = D.debounced

	if ret == SymbolNone && primer {
		ret = SymbolPrimer
	}
	return ret
}

// strongest returns the index of the group member that is more than
// threshold times the sum of the others, or -1.
func strongest(group []float64, threshold float64) int {
	var total = floats.Sum(group)
	for i, v := range group {
		if v > threshold*(total-v) {
			return i
		}
	}
	return -1
}

func (D *goertzelDetector) groupThreshold() float64 {
	if D.opts.Relaxed {
		return GROUP_THRESHOLD_RELAXED
	}
	return GROUP_THRESHOLD
}

func (D *goertzelDetector) pairShare() float64 {
	if D.opts.Relaxed {
		return PAIR_SHARE_RELAXED
	}
	return PAIR_SHARE
}

func (D *goertzelDetector) classifyDTMF(output, share []float64) Symbol {
	var threshold = D.groupThreshold()
	var row = strongest(output[0:4], threshold)
	var col = strongest(output[4:8], threshold)
	if row < 0 || col < 0 {
		return SymbolNone
	}
	if share[row] < D.pairShare() || share[4+col] < D.pairShare() {
		return SymbolNone
	}
	return dtmfRC2Char[row*4+col]
}

func (D *goertzelDetector) classifyMF(output, share []float64) Symbol {
	var mf = output[:len(MF_TONES)]

	var first, second = -1, -1
	for i, v := range mf {
		if first < 0 || v > mf[first] {
			second = first
			first = i
		} else if second < 0 || v > mf[second] {
			second = i
		}
	}

	var rest = floats.Sum(mf) - mf[first] - mf[second]
	if mf[second] <= D.groupThreshold()*rest {
		return SymbolNone
	}
	if share[first] < D.pairShare() || share[second] < D.pairShare() {
		return SymbolNone
	}

	if first > second {
		first, second = second, first
	}
	return mfPair2Char[[2]int{first, second}]
}

func (D *goertzelDetector) classifyCoin(share []float64) Symbol {
	if D.opts.SingleFrequency {
		if share[1] >= D.pairShare() {
			return SymbolCoinSingle
		}
		return SymbolNone
	}
	if share[0] >= D.pairShare() && share[1] >= D.pairShare() {
		return SymbolCoinDual
	}
	return SymbolNone
}

// checkPrimer reports true once per sustained burst of the priming tone.
func (D *goertzelDetector) checkPrimer(loud bool, share []float64) bool {
	if D.primer_idx < 0 {
		return false
	}
	if !loud || share[D.primer_idx] < 0.5 {
		D.primer_blocks = 0
		D.primer_reported = false
		return false
	}
	D.primer_blocks++
	if D.primer_blocks >= D.primer_needed && !D.primer_reported {
		D.primer_reported = true
		return true
	}
	return false
}
