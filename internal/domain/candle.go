package domain

import "time"

// Candle is a single OHLCV bar as returned by the market-data feed.
// Immutable once produced.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // epoch seconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	TimeStr   string  `json:"time_str"` // formatted wall-clock time for display
}

// Range returns the full high-low span of the candle.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// OHLC is one session's open/high/low/close, used as the source for the
// daily level calculation.
type OHLC struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Date   time.Time `json:"date"`
	Source string    `json:"source"` // "historical" or "quotes_estimate"
}

const (
	SourceHistorical     = "historical"
	SourceQuotesEstimate = "quotes_estimate"
)
