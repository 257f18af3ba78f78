package producers

import (
	"context"
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// WilliamsR buys the exit from the oversold zone (crossing up through
// -80) and sells the drop out of the overbought zone (crossing down
// through -20). Sell wins a simultaneous trigger.
type WilliamsR struct {
	period     int
	oversold   float64
	overbought float64
}

type WilliamsOption func(*WilliamsR)

func WithWilliamsPeriod(period int) WilliamsOption {
	return func(p *WilliamsR) {
		if period > 0 {
			p.period = period
		}
	}
}

func WithWilliamsZones(oversold, overbought float64) WilliamsOption {
	return func(p *WilliamsR) {
		p.oversold, p.overbought = oversold, overbought
	}
}

func NewWilliamsR(opts ...WilliamsOption) *WilliamsR {
	p := &WilliamsR{period: 14, oversold: -80, overbought: -20}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WilliamsR) Name() string { return NameWilliamsR }

func (p *WilliamsR) RequiredColumns() []string { return []string{p.column()} }

func (p *WilliamsR) column() string {
	if p.period == 14 {
		return models.ColWilliamsR
	}
	return fmt.Sprintf("%s_%d", models.ColWilliamsR, p.period)
}

func (p *WilliamsR) Evaluate(_ context.Context, w *models.MarketWindow) (int, error) {
	col, ok := w.Column(p.column())
	if !ok || len(col) < max(2, p.period+1) {
		return 0, nil
	}
	prev, cur := col[len(col)-2], col[len(col)-1]
	if anyNaN(prev, cur) {
		return 0, nil
	}
	switch {
	case prev >= p.overbought && cur < p.overbought:
		return -1, nil
	case prev <= p.oversold && cur > p.oversold:
		return 1, nil
	default:
		return 0, nil
	}
}

var (
	_ domsvc.Producer    = (*WilliamsR)(nil)
	_ domsvc.ColumnAware = (*WilliamsR)(nil)
)
