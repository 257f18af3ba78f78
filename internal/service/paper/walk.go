package paper

import (
	"math/rand"
	"strings"
	"time"
)

// profile is the random-walk shape for one instrument family.
type profile struct {
	start float64
	vol   float64
}

func symbolProfile(symbol string) profile {
	u := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(u, "BTC"):
		return profile{start: 30000, vol: 0.02}
	case strings.HasPrefix(u, "ETH"):
		return profile{start: 2000, vol: 0.03}
	default:
		return profile{start: 100, vol: 0.05}
	}
}

// series is one synthetic OHLCV stream, oldest bar first. The walk keeps
// extending it toward "now"; between bar closes only the current bar moves.
type series struct {
	vol    float64
	step   time.Duration
	times  []time.Time
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// newSeries seeds n bars of history ending at the bar containing now.
func newSeries(rng *rand.Rand, p profile, step time.Duration, n int, now time.Time) *series {
	if n < 2 {
		n = 2
	}
	s := &series{
		vol:    p.vol,
		step:   step,
		times:  make([]time.Time, n),
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}

	end := now.Truncate(step)
	prices := make([]float64, n)
	prices[0] = p.start
	for i := 1; i < n; i++ {
		change := prices[i-1] * uniform(rng, -p.vol, p.vol)
		prices[i] = max(0.01, prices[i-1]+change)
	}

	for i := 0; i < n; i++ {
		pr := prices[i]
		s.times[i] = end.Add(-step * time.Duration(n-1-i))
		s.high[i] = pr * (1 + uniform(rng, 0, p.vol*0.5))
		s.low[i] = pr * (1 - uniform(rng, 0, p.vol*0.5))
		s.open[i] = pr * (1 + uniform(rng, -p.vol*0.25, p.vol*0.25))
		s.close[i] = pr * (1 + uniform(rng, -p.vol*0.25, p.vol*0.25))
		s.volume[i] = pr * uniform(rng, 10, 100)
	}
	return s
}

// advance appends full bars until the series reaches the bar containing
// now, then nudges the current bar so consecutive reads inside one bar
// still move.
func (s *series) advance(rng *rand.Rand, now time.Time) {
	target := now.Truncate(s.step)
	for s.lastTime().Add(s.step).Compare(target) <= 0 {
		s.appendBar(rng)
	}
	if s.lastTime().Equal(target) {
		s.jitter(rng)
	}
}

func (s *series) lastTime() time.Time { return s.times[len(s.times)-1] }

func (s *series) appendBar(rng *rand.Rand) {
	base := s.close[len(s.close)-1]
	change := base * uniform(rng, -s.vol, s.vol)
	pr := max(0.01, base+change)

	s.times = append(s.times, s.lastTime().Add(s.step))
	s.high = append(s.high, max(pr, base)*(1+uniform(rng, 0, s.vol*0.3)))
	s.low = append(s.low, min(pr, base)*(1-uniform(rng, 0, s.vol*0.3)))
	s.open = append(s.open, base*(1+uniform(rng, -s.vol*0.2, s.vol*0.2)))
	s.close = append(s.close, pr*(1+uniform(rng, -s.vol*0.15, s.vol*0.15)))
	s.volume = append(s.volume, pr*uniform(rng, 10, 100))
}

func (s *series) jitter(rng *rand.Rand) {
	i := len(s.close) - 1
	newClose := max(0.01, s.close[i]*(1+uniform(rng, -s.vol*0.02, s.vol*0.02)))
	s.close[i] = newClose
	s.high[i] = max(s.high[i], newClose)
	s.low[i] = min(s.low[i], newClose)
	s.volume[i] *= 1 + uniform(rng, -0.02, 0.08)
}

// tail copies the newest limit bars. Copies, because the walk keeps
// mutating its own buffers.
func (s *series) tail(limit int) (times []time.Time, open, high, low, clos, volume []float64) {
	n := len(s.close)
	if limit < 1 {
		limit = 1
	}
	if limit > n {
		limit = n
	}
	from := n - limit
	times = append([]time.Time(nil), s.times[from:]...)
	open = append([]float64(nil), s.open[from:]...)
	high = append([]float64(nil), s.high[from:]...)
	low = append([]float64(nil), s.low[from:]...)
	clos = append([]float64(nil), s.close[from:]...)
	volume = append([]float64(nil), s.volume[from:]...)
	return
}
