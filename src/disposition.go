package coinsig

import (
	"fmt"
	"strings"
)

// Disposition is what the exchange asks the coin controller to do.
type Disposition int

const (
	CoinReturn Disposition = iota
	CoinCollect
	OperatorRingback
	OperatorReleased
	OperatorAttached
	CoinCollectAndOperatorReleased
)

var Dispositions = []Disposition{
	CoinReturn,
	CoinCollect,
	OperatorRingback,
	OperatorReleased,
	OperatorAttached,
	CoinCollectAndOperatorReleased,
}

type dispositionInfo struct {
	code   string // Event name.
	name   string // Short name accepted by Signal.
	symbol Symbol // MF digit carrying it in EIS.
	pulses int    // Legacy multi-wink count, 0 if there is none.
}

var dispositionTable = map[Disposition]dispositionInfo{
	CoinReturn:                     {"CoinReturn", "return", '*', 4},
	CoinCollect:                    {"CoinCollect", "collect", '2', 3},
	OperatorRingback:               {"OperatorRingback", "ringback", 'C', 5},
	OperatorReleased:               {"OperatorReleased", "released", '8', 1},
	OperatorAttached:               {"OperatorAttached", "attached", '0', 2},
	CoinCollectAndOperatorReleased: {"CoinCollectAndOperatorReleased", "collectreleased", '#', 0},
}

func (d Disposition) String() string {
	if info, ok := dispositionTable[d]; ok {
		return info.code
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// Name is the short form: return, collect, ringback, released,
// attached, collectreleased.
func (d Disposition) Name() string {
	return dispositionTable[d].name
}

// Symbol is the MF digit that carries d.
func (d Disposition) Symbol() Symbol {
	return dispositionTable[d].symbol
}

// MFPair is the pair of MF frequencies for d.
func (d Disposition) MFPair() [2]float64 {
	var f, _ = ToneFrequencies(DetectMF, d.Symbol())
	if len(f) != 2 {
		return [2]float64{}
	}
	return [2]float64{f[0], f[1]}
}

// PulseCount is the number of winks for legacy signaling.
// False for dispositions that only EIS can express.
func (d Disposition) PulseCount() (int, bool) {
	var info, ok = dispositionTable[d]
	if !ok || info.pulses == 0 {
		return 0, false
	}
	return info.pulses, true
}

// ParseDisposition accepts the short names, case insensitive.
func ParseDisposition(s string) (Disposition, error) {
	var want = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Dispositions {
		if dispositionTable[d].name == want {
			return d, nil
		}
	}
	return 0, configError("parse disposition", fmt.Errorf("unknown disposition %q", s))
}

// DispositionForSymbol maps a received MF digit.
func DispositionForSymbol(s Symbol) (Disposition, bool) {
	for _, d := range Dispositions {
		if dispositionTable[d].symbol == s {
			return d, true
		}
	}
	return 0, false
}
