package producers

import (
	"context"
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// RSI flags threshold crossings: sell when the oscillator crosses up
// through the upper band, buy when it crosses down through the lower band.
// Simultaneous triggers resolve to sell.
type RSI struct {
	period int
	lower  float64
	upper  float64
}

type RSIOption func(*RSI)

func WithRSIPeriod(period int) RSIOption {
	return func(p *RSI) {
		if period > 0 {
			p.period = period
		}
	}
}

func WithRSIBands(lower, upper float64) RSIOption {
	return func(p *RSI) {
		p.lower = lower
		p.upper = upper
	}
}

func NewRSI(opts ...RSIOption) *RSI {
	p := &RSI{period: 14, lower: 30, upper: 70}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RSI) Name() string { return NameRSI }

func (p *RSI) RequiredColumns() []string { return []string{p.column()} }

func (p *RSI) column() string {
	if p.period == 14 {
		return models.ColRSI
	}
	return fmt.Sprintf("%s_%d", models.ColRSI, p.period)
}

func (p *RSI) Evaluate(_ context.Context, w *models.MarketWindow) (int, error) {
	col, ok := w.Column(p.column())
	if !ok || len(col) < max(2, p.period+1) {
		return 0, nil
	}
	prev, cur := col[len(col)-2], col[len(col)-1]
	if anyNaN(prev, cur) {
		return 0, nil
	}
	switch {
	case prev < p.upper && cur >= p.upper:
		return -1, nil
	case prev > p.lower && cur <= p.lower:
		return 1, nil
	default:
		return 0, nil
	}
}

var (
	_ domsvc.Producer    = (*RSI)(nil)
	_ domsvc.ColumnAware = (*RSI)(nil)
)
