package aggregate

import (
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// DefaultVolatilityThreshold separates volatile from calm windows.
const DefaultVolatilityThreshold = 0.02

// Adaptive classifies the market window each cycle and delegates: volatile
// windows demand consensus, trending and normal windows use weighted
// voting. The chosen regime is appended to the reasoning so the audit
// trail shows which path produced the decision.
type Adaptive struct {
	volatilityThreshold float64
	voting              *WeightedVoting
	consensus           *Consensus
}

func NewAdaptive(weights map[string]float64, minConsensusRatio, volatilityThreshold float64) *Adaptive {
	if volatilityThreshold <= 0 {
		volatilityThreshold = DefaultVolatilityThreshold
	}
	return &Adaptive{
		volatilityThreshold: volatilityThreshold,
		voting:              NewWeightedVoting(weights),
		consensus:           NewConsensus(minConsensusRatio),
	}
}

func (a *Adaptive) Name() string { return "adaptive" }

func (a *Adaptive) Aggregate(signals []models.StrategySignal, window *models.MarketWindow) models.AggregatedDecision {
	if len(signals) == 0 {
		// No regime annotation for the empty base case.
		return models.NewHoldDecision(ReasonNoSignals, nil)
	}

	switch cond := Classify(window, a.volatilityThreshold); cond {
	case CondVolatile:
		return a.consensus.Aggregate(signals, window).
			Annotate(" (volatile market, consensus)")
	case CondUptrend, CondDowntrend:
		return a.voting.Aggregate(signals, window).
			Annotate(fmt.Sprintf(" (trending market: %s)", cond))
	default:
		return a.voting.Aggregate(signals, window).
			Annotate(" (normal market conditions)")
	}
}

var _ domsvc.Aggregator = (*Adaptive)(nil)
