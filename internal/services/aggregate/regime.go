package aggregate

import (
	"math"

	"FinTrade/internal/domain/models"
)

// Trend labels derived from the moving-average comparison.
const (
	TrendUnknown  = "unknown"
	TrendUp       = "uptrend"
	TrendDown     = "downtrend"
	TrendSideways = "sideways"
)

// Market conditions driving aggregator selection.
const (
	CondVolatile  = "volatile"
	CondUptrend   = "uptrend"
	CondDowntrend = "downtrend"
	CondNormal    = "normal"
)

const (
	minVolatilityObs = 20
	shortSMAPeriod   = 20
	longSMAPeriod    = 50
)

// Volatility is the sample standard deviation of period-over-period close
// returns across the window. Fewer than 20 bars reads as 0 (not volatile).
func Volatility(w *models.MarketWindow) float64 {
	n := w.Len()
	if n < minVolatilityObs {
		return 0
	}
	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		prev := w.Close[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, w.Close[i]/prev-1)
	}
	return sampleStddev(returns)
}

// DetectTrend compares the 20-period and 50-period simple moving averages
// of the close. Fewer than 50 bars reads as unknown.
func DetectTrend(w *models.MarketWindow) string {
	if w.Len() < longSMAPeriod {
		return TrendUnknown
	}
	short := sma(w.Close, shortSMAPeriod)
	long := sma(w.Close, longSMAPeriod)
	switch {
	case short > long:
		return TrendUp
	case short < long:
		return TrendDown
	default:
		return TrendSideways
	}
}

// Classify maps the window to the market condition used for aggregator
// selection. A nil or short window is normal.
func Classify(w *models.MarketWindow, volatilityThreshold float64) string {
	if w.Len() == 0 {
		return CondNormal
	}
	if Volatility(w) > volatilityThreshold {
		return CondVolatile
	}
	switch DetectTrend(w) {
	case TrendUp:
		return CondUptrend
	case TrendDown:
		return CondDowntrend
	default:
		return CondNormal
	}
}

func sma(xs []float64, period int) float64 {
	tail := xs[len(xs)-period:]
	var sum float64
	for _, x := range tail {
		sum += x
	}
	return sum / float64(period)
}

func sampleStddev(xs []float64) float64 {
	m := len(xs)
	if m < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(m)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(m-1))
}
