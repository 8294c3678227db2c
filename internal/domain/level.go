package domain

// LevelKind identifies one of the five daily pivot levels.
type LevelKind string

const (
	LevelS1    LevelKind = "S1"
	LevelBC    LevelKind = "BC"
	LevelPivot LevelKind = "PIVOT"
	LevelTC    LevelKind = "TC"
	LevelR1    LevelKind = "R1"
)

// KeyLevels are the levels evaluated for alerts. BC and TC are carried in
// every LevelSet but never alerted on; this is policy, not an oversight.
var KeyLevels = []LevelKind{LevelS1, LevelR1, LevelPivot}

// LevelSet holds one session's pivot levels for a symbol. Computed once
// per trading day from the prior session's OHLC and then read-only.
type LevelSet struct {
	Pivot float64 `json:"pivot"`
	TC    float64 `json:"tc"`
	BC    float64 `json:"bc"`
	R1    float64 `json:"r1"`
	S1    float64 `json:"s1"`
}

// ComputeLevelSet derives the daily levels from the previous session's OHLC.
func ComputeLevelSet(ohlc OHLC) LevelSet {
	pivot := (ohlc.High + ohlc.Low + ohlc.Close) / 3
	bc := (ohlc.High + ohlc.Low) / 2
	return LevelSet{
		Pivot: pivot,
		BC:    bc,
		TC:    2*pivot - bc,
		R1:    2*pivot - ohlc.Low,
		S1:    2*pivot - ohlc.High,
	}
}

// Value maps a level kind to its numeric value.
func (s LevelSet) Value(kind LevelKind) float64 {
	switch kind {
	case LevelS1:
		return s.S1
	case LevelBC:
		return s.BC
	case LevelPivot:
		return s.Pivot
	case LevelTC:
		return s.TC
	case LevelR1:
		return s.R1
	}
	return 0
}

// DailyLevels is the persisted record of one symbol's levels for a date,
// keyed uniquely by (symbol, date) to tolerate at-least-once writes.
type DailyLevels struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"` // YYYY-MM-DD
	Levels LevelSet `json:"levels"`
	Source OHLC     `json:"source_ohlc"`
}
