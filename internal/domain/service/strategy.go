package service

import (
	"context"

	"FinTrade/internal/domain/models"
)

// Producer is a registered strategy. It inspects the market window and
// returns a raw direction: -1 (sell), 0 (hold) or 1 (buy). Anything the
// producer cannot evaluate (short window, missing column) is a hold, not
// an error; errors are reserved for real failures.
type Producer interface {
	Name() string
	Evaluate(ctx context.Context, window *models.MarketWindow) (int, error)
}

// SelfConfident is an optional Producer extension for strategies that
// estimate their own confidence. Producers without it get the
// observation-count heuristic applied by the signal manager.
type SelfConfident interface {
	Confidence(window *models.MarketWindow) float64
}

// ColumnAware is an optional Producer extension declaring the indicator
// columns the producer reads. Gateways that synthesize market data use it
// to know which columns to attach.
type ColumnAware interface {
	RequiredColumns() []string
}

// Aggregator folds the signals of one cycle into a single decision. It is
// a total function: any input, including none, yields a valid decision.
type Aggregator interface {
	Name() string
	Aggregate(signals []models.StrategySignal, window *models.MarketWindow) models.AggregatedDecision
}
