package producers

import (
	"context"
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// MACDCrossover trades the crossings of the MACD line against its signal
// line: buy when MACD moves above, sell when it moves below.
type MACDCrossover struct {
	fast         int
	slow         int
	signalPeriod int
}

type MACDOption func(*MACDCrossover)

func WithMACDPeriods(fast, slow, signalPeriod int) MACDOption {
	return func(p *MACDCrossover) {
		if fast > 0 && slow > fast && signalPeriod > 0 {
			p.fast, p.slow, p.signalPeriod = fast, slow, signalPeriod
		}
	}
}

func NewMACDCrossover(opts ...MACDOption) *MACDCrossover {
	p := &MACDCrossover{fast: 12, slow: 26, signalPeriod: 9}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MACDCrossover) Name() string { return NameMACD }

func (p *MACDCrossover) RequiredColumns() []string {
	macdCol, signalCol := p.columns()
	return []string{macdCol, signalCol}
}

func (p *MACDCrossover) columns() (string, string) {
	if p.fast == 12 && p.slow == 26 && p.signalPeriod == 9 {
		return models.ColMACD, models.ColMACDSignal
	}
	suffix := fmt.Sprintf("_%d_%d_%d", p.fast, p.slow, p.signalPeriod)
	return models.ColMACD + suffix, models.ColMACDSignal + suffix
}

func (p *MACDCrossover) Evaluate(_ context.Context, w *models.MarketWindow) (int, error) {
	macdCol, signalCol := p.columns()
	macd, ok := w.Column(macdCol)
	if !ok {
		return 0, nil
	}
	signal, ok := w.Column(signalCol)
	if !ok {
		return 0, nil
	}
	if len(macd) < max(2, p.slow+p.signalPeriod) {
		return 0, nil
	}

	n := len(macd)
	prevM, curM := macd[n-2], macd[n-1]
	prevS, curS := signal[n-2], signal[n-1]
	if anyNaN(prevM, curM, prevS, curS) {
		return 0, nil
	}
	switch {
	case prevM >= prevS && curM < curS:
		return -1, nil
	case prevM <= prevS && curM > curS:
		return 1, nil
	default:
		return 0, nil
	}
}

var (
	_ domsvc.Producer    = (*MACDCrossover)(nil)
	_ domsvc.ColumnAware = (*MACDCrossover)(nil)
)
