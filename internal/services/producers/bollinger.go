package producers

import (
	"context"
	"fmt"
	"math"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// BollingerMeanReversion buys touches of the lower band and sells touches
// of the upper band on the latest bar. Sell wins if the bar somehow spans
// both bands.
type BollingerMeanReversion struct {
	period int
}

type BollingerOption func(*BollingerMeanReversion)

func WithBollingerPeriod(period int) BollingerOption {
	return func(p *BollingerMeanReversion) {
		if period > 0 {
			p.period = period
		}
	}
}

func NewBollingerMeanReversion(opts ...BollingerOption) *BollingerMeanReversion {
	p := &BollingerMeanReversion{period: 20}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *BollingerMeanReversion) Name() string { return NameBollinger }

func (p *BollingerMeanReversion) RequiredColumns() []string {
	upper, middle, lower := p.columns()
	return []string{upper, middle, lower}
}

func (p *BollingerMeanReversion) columns() (string, string, string) {
	if p.period == 20 {
		return models.ColBBUpper, models.ColBBMiddle, models.ColBBLower
	}
	return fmt.Sprintf("%s_%d", models.ColBBUpper, p.period),
		fmt.Sprintf("%s_%d", models.ColBBMiddle, p.period),
		fmt.Sprintf("%s_%d", models.ColBBLower, p.period)
}

func (p *BollingerMeanReversion) Evaluate(_ context.Context, w *models.MarketWindow) (int, error) {
	upperCol, middleCol, lowerCol := p.columns()
	upper, ok := w.Column(upperCol)
	if !ok {
		return 0, nil
	}
	lower, ok := w.Column(lowerCol)
	if !ok {
		return 0, nil
	}
	if len(upper) < max(2, p.period+1) {
		return 0, nil
	}

	n := len(upper)
	price := math.NaN()
	switch {
	case len(w.Close) == n:
		price = w.Close[n-1]
	case len(w.High) == n:
		price = w.High[n-1]
	default:
		if middle, ok := w.Column(middleCol); ok {
			price = middle[n-1]
		}
	}
	if anyNaN(price, upper[n-1], lower[n-1]) {
		return 0, nil
	}
	switch {
	case price >= upper[n-1]:
		return -1, nil
	case price <= lower[n-1]:
		return 1, nil
	default:
		return 0, nil
	}
}

var (
	_ domsvc.Producer    = (*BollingerMeanReversion)(nil)
	_ domsvc.ColumnAware = (*BollingerMeanReversion)(nil)
)
