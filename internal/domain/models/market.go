package models

import "time"

// Standard indicator column names as produced by the indicator service.
// Parameterized variants carry a suffix, e.g. "rsi_21".
const (
	ColRSI        = "rsi"
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColBBUpper    = "bb_h"
	ColBBMiddle   = "bb_m"
	ColBBLower    = "bb_l"
	ColStochK     = "stoch_k"
	ColStochD     = "stoch_d"
	ColWilliamsR  = "williams_r"
)

// MarketWindow is the recent-price table one decision cycle works on:
// column-oriented OHLCV plus externally computed indicator columns.
// All slices have equal length, oldest bar first.
type MarketWindow struct {
	Symbol     string
	Timeframe  string
	Time       []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
	Indicators map[string][]float64
}

func (w *MarketWindow) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Close)
}

// LastClose returns the most recent close, or 0 for an empty window.
func (w *MarketWindow) LastClose() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	return w.Close[n-1]
}

// Column returns the named indicator column if present and fully populated
// against the window length.
func (w *MarketWindow) Column(name string) ([]float64, bool) {
	if w == nil || w.Indicators == nil {
		return nil, false
	}
	col, ok := w.Indicators[name]
	if !ok || len(col) != w.Len() {
		return nil, false
	}
	return col, true
}

// SetColumn attaches an indicator column. Length must match the window.
func (w *MarketWindow) SetColumn(name string, values []float64) bool {
	if w == nil || len(values) != w.Len() {
		return false
	}
	if w.Indicators == nil {
		w.Indicators = make(map[string][]float64)
	}
	w.Indicators[name] = values
	return true
}
