package paper

import (
	"math"
	"strconv"
	"strings"

	"FinTrade/internal/domain/models"
)

// enrich computes the requested indicator columns over the synthetic
// series. In paper mode this stands in for the external indicator
// service; the decision core still only reads columns.
func enrich(w *models.MarketWindow, cols []string) {
	for _, name := range cols {
		if vals := computeColumn(w, name); vals != nil {
			w.SetColumn(name, vals)
		}
	}
}

// defaultColumns is what gets computed when no producer declared its needs.
func defaultColumns() []string {
	return []string{
		models.ColRSI,
		models.ColMACD, models.ColMACDSignal,
		models.ColBBUpper, models.ColBBMiddle, models.ColBBLower,
		models.ColStochK, models.ColStochD,
		models.ColWilliamsR,
	}
}

// computeColumn resolves a column name, including parameterized variants
// like "rsi_21" or "macd_12_26_9", to its values. Unknown or malformed
// names yield nil.
func computeColumn(w *models.MarketWindow, name string) []float64 {
	switch {
	case matches(name, models.ColMACDSignal):
		ps, ok := params(name, models.ColMACDSignal)
		if !ok {
			return nil
		}
		f, s, g := macdParams(ps)
		return macdSignalSeries(w.Close, f, s, g)
	case matches(name, models.ColMACD):
		ps, ok := params(name, models.ColMACD)
		if !ok {
			return nil
		}
		f, s, _ := macdParams(ps)
		return macdSeries(w.Close, f, s)
	case matches(name, models.ColBBUpper):
		ps, ok := params(name, models.ColBBUpper)
		if !ok {
			return nil
		}
		u, _, _ := bollingerSeries(w.Close, singleParam(ps, 20))
		return u
	case matches(name, models.ColBBMiddle):
		ps, ok := params(name, models.ColBBMiddle)
		if !ok {
			return nil
		}
		_, m, _ := bollingerSeries(w.Close, singleParam(ps, 20))
		return m
	case matches(name, models.ColBBLower):
		ps, ok := params(name, models.ColBBLower)
		if !ok {
			return nil
		}
		_, _, l := bollingerSeries(w.Close, singleParam(ps, 20))
		return l
	case matches(name, models.ColStochK):
		ps, ok := params(name, models.ColStochK)
		if !ok {
			return nil
		}
		k, _ := stochParams(ps)
		return stochKSeries(w.High, w.Low, w.Close, k)
	case matches(name, models.ColStochD):
		ps, ok := params(name, models.ColStochD)
		if !ok {
			return nil
		}
		k, d := stochParams(ps)
		return smaSeries(stochKSeries(w.High, w.Low, w.Close, k), d)
	case matches(name, models.ColWilliamsR):
		ps, ok := params(name, models.ColWilliamsR)
		if !ok {
			return nil
		}
		return williamsSeries(w.High, w.Low, w.Close, singleParam(ps, 14))
	case matches(name, models.ColRSI):
		ps, ok := params(name, models.ColRSI)
		if !ok {
			return nil
		}
		return rsiSeries(w.Close, singleParam(ps, 14))
	default:
		return nil
	}
}

func matches(name, prefix string) bool {
	return name == prefix || strings.HasPrefix(name, prefix+"_")
}

// params extracts the trailing integer parameters of a suffixed column
// name ("macd_12_26_9" -> [12 26 9]). A suffix that is not all positive
// integers fails the parse.
func params(name, prefix string) ([]int, bool) {
	if name == prefix {
		return nil, true
	}
	parts := strings.Split(strings.TrimPrefix(name, prefix+"_"), "_")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v <= 0 {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func singleParam(ps []int, def int) int {
	if len(ps) == 1 {
		return ps[0]
	}
	return def
}

func macdParams(ps []int) (fast, slow, signal int) {
	fast, slow, signal = 12, 26, 9
	if len(ps) == 3 {
		fast, slow, signal = ps[0], ps[1], ps[2]
	}
	return
}

func stochParams(ps []int) (k, d int) {
	k, d = 14, 3
	if len(ps) == 2 {
		k, d = ps[0], ps[1]
	}
	return
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rsiSeries is Wilder's RSI: seed averages with a simple mean over the
// first period, then smooth.
func rsiSeries(close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period < 1 || n < period+1 {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		d := close[i] - close[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// emaSeries seeds at the first value, alpha = 2/(period+1).
func emaSeries(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

func macdSeries(close []float64, fast, slow int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if n == 0 {
		return out
	}
	fe := emaSeries(close, fast)
	se := emaSeries(close, slow)
	for i := slow - 1; i < n; i++ {
		out[i] = fe[i] - se[i]
	}
	return out
}

func macdSignalSeries(close []float64, fast, slow, signal int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if n < slow {
		return out
	}
	macd := macdSeries(close, fast, slow)
	alpha := 2.0 / (float64(signal) + 1)
	ema := macd[slow-1]
	for i := slow - 1; i < n; i++ {
		if i > slow-1 {
			ema = alpha*macd[i] + (1-alpha)*ema
		}
		if i >= slow+signal-2 {
			out[i] = ema
		}
	}
	return out
}

func smaSeries(x []float64, period int) []float64 {
	n := len(x)
	out := nanSlice(n)
	if period < 1 {
		return out
	}
	for i := period - 1; i < n; i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(x[j]) {
				valid = false
				break
			}
			sum += x[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// bollingerSeries uses a population standard deviation and 2-sigma bands.
func bollingerSeries(close []float64, period int) (upper, middle, lower []float64) {
	n := len(close)
	upper, middle, lower = nanSlice(n), nanSlice(n), nanSlice(n)
	if period < 1 {
		return
	}
	for i := period - 1; i < n; i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += close[j]
		}
		mean := sum / float64(period)
		varSum := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := close[j] - mean
			varSum += d * d
		}
		sd := math.Sqrt(varSum / float64(period))
		middle[i] = mean
		upper[i] = mean + 2*sd
		lower[i] = mean - 2*sd
	}
	return
}

func stochKSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period < 1 || len(high) != n || len(low) != n {
		return out
	}
	for i := period - 1; i < n; i++ {
		hh := high[i]
		ll := low[i]
		for j := i - period + 1; j <= i; j++ {
			hh = max(hh, high[j])
			ll = min(ll, low[j])
		}
		if hh == ll {
			out[i] = 50
			continue
		}
		out[i] = (close[i] - ll) / (hh - ll) * 100
	}
	return out
}

func williamsSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period < 1 || len(high) != n || len(low) != n {
		return out
	}
	for i := period - 1; i < n; i++ {
		hh := high[i]
		ll := low[i]
		for j := i - period + 1; j <= i; j++ {
			hh = max(hh, high[j])
			ll = min(ll, low[j])
		}
		if hh == ll {
			out[i] = -50
			continue
		}
		out[i] = (hh - close[i]) / (hh - ll) * -100
	}
	return out
}
