package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Symbols reported by the tone detector and the direction
 *		of the leg they were heard on.
 *
 *---------------------------------------------------------------*/

import (
	"strings"
	"time"
)

// Direction is relative to the detecting side of the call.
type Direction int

const (
	CallerWard   Direction = iota // "RX", audio read from the channel.
	ExchangeWard                  // "TX", audio written to the channel.
)

const numDirections = 2

func (d Direction) String() string {
	switch d {
	case CallerWard:
		return "RX"
	case ExchangeWard:
		return "TX"
	}
	return "??"
}

// ParseDirection accepts rx/tx and the long caller/exchange forms.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rx", "r", "caller", "callerward", "read":
		return CallerWard, true
	case "tx", "t", "exchange", "exchangeward", "write":
		return ExchangeWard, true
	}
	return CallerWard, false
}

// DirectionMask selects one or both directions.
type DirectionMask uint8

const (
	MaskCallerWard   DirectionMask = 1 << CallerWard
	MaskExchangeWard DirectionMask = 1 << ExchangeWard
	MaskBoth                       = MaskCallerWard | MaskExchangeWard
)

func (m DirectionMask) Has(d Direction) bool {
	return m&(1<<d) != 0
}

// ParseDirectionMask accepts "rx", "tx", "both" or "rx,tx".
func ParseDirectionMask(s string) (DirectionMask, bool) {
	var m DirectionMask
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "both" || part == "rxtx" {
			m |= MaskBoth
			continue
		}
		var d, ok = ParseDirection(part)
		if !ok {
			return 0, false
		}
		m |= 1 << d
	}
	return m, m != 0
}

// Symbol is one character of the detector alphabet.
//
// 0-9, A-D, * and # are digits.  For MF, * is KP, # is ST,
// A is STP, B is ST2P and C is ST3P.
type Symbol rune

const (
	SymbolNone Symbol = 0

	// Detector-internal: one confirmed beep of the 1700+2200 Hz coin tone.
	SymbolCoinDual Symbol = '$'

	// Detector-internal: one confirmed beep in single frequency (2200 Hz) mode.
	SymbolCoinSingle Symbol = '%'

	// Sustained in-band EIS priming tone.  Only produced when primer
	// detection is enabled, for decoding recordings.
	SymbolPrimer Symbol = 'W'
)

const digitAlphabet = "0123456789ABCD*#"

// IsDigit reports whether s belongs to the DTMF/MF digit alphabet.
func (s Symbol) IsDigit() bool {
	return s != SymbolNone && strings.ContainsRune(digitAlphabet, rune(s))
}

// IsCoinSymbol reports whether s is one of the "coin beep confirmed" symbols.
func (s Symbol) IsCoinSymbol() bool {
	return s == SymbolCoinDual || s == SymbolCoinSingle
}

func (s Symbol) String() string {
	if s == SymbolNone {
		return ""
	}
	return string(rune(s))
}

// SymbolEvent is a detected symbol.  Immutable once produced.
type SymbolEvent struct {
	Direction Direction
	Symbol    Symbol
	At        time.Time
}
