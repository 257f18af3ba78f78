package producers

import (
	"context"
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// StochasticOscillator trades %K/%D crossings inside the extreme zones:
// buy an upward crossing while %K sits below the oversold level, sell a
// downward crossing while %K sits above the overbought level.
type StochasticOscillator struct {
	kPeriod    int
	dPeriod    int
	oversold   float64
	overbought float64
}

type StochasticOption func(*StochasticOscillator)

func WithStochasticPeriods(kPeriod, dPeriod int) StochasticOption {
	return func(p *StochasticOscillator) {
		if kPeriod > 0 && dPeriod > 0 {
			p.kPeriod, p.dPeriod = kPeriod, dPeriod
		}
	}
}

func WithStochasticZones(oversold, overbought float64) StochasticOption {
	return func(p *StochasticOscillator) {
		p.oversold, p.overbought = oversold, overbought
	}
}

func NewStochasticOscillator(opts ...StochasticOption) *StochasticOscillator {
	p := &StochasticOscillator{kPeriod: 14, dPeriod: 3, oversold: 20, overbought: 80}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *StochasticOscillator) Name() string { return NameStochastic }

func (p *StochasticOscillator) RequiredColumns() []string {
	kCol, dCol := p.columns()
	return []string{kCol, dCol}
}

func (p *StochasticOscillator) columns() (string, string) {
	if p.kPeriod == 14 && p.dPeriod == 3 {
		return models.ColStochK, models.ColStochD
	}
	suffix := fmt.Sprintf("_%d_%d", p.kPeriod, p.dPeriod)
	return models.ColStochK + suffix, models.ColStochD + suffix
}

func (p *StochasticOscillator) Evaluate(_ context.Context, w *models.MarketWindow) (int, error) {
	kCol, dCol := p.columns()
	k, ok := w.Column(kCol)
	if !ok {
		return 0, nil
	}
	d, ok := w.Column(dCol)
	if !ok {
		return 0, nil
	}
	if len(k) < max(2, p.kPeriod+p.dPeriod) {
		return 0, nil
	}

	n := len(k)
	prevK, curK := k[n-2], k[n-1]
	prevD, curD := d[n-2], d[n-1]
	if anyNaN(prevK, curK, prevD, curD) {
		return 0, nil
	}
	switch {
	case prevK >= prevD && curK < curD && curK > p.overbought:
		return -1, nil
	case prevK <= prevD && curK > curD && curK < p.oversold:
		return 1, nil
	default:
		return 0, nil
	}
}

var (
	_ domsvc.Producer    = (*StochasticOscillator)(nil)
	_ domsvc.ColumnAware = (*StochasticOscillator)(nil)
)
