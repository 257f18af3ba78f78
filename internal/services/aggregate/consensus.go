package aggregate

import (
	"fmt"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// DefaultMinConsensusRatio is the fraction of producers that must agree
// before the consensus aggregator acts.
const DefaultMinConsensusRatio = 0.7

// Consensus acts only when enough producers vote the same value. The
// agreement ratio doubles as the decision confidence, including for an
// agreed hold.
type Consensus struct {
	minRatio float64
}

func NewConsensus(minRatio float64) *Consensus {
	if minRatio <= 0 || minRatio > 1 {
		minRatio = DefaultMinConsensusRatio
	}
	return &Consensus{minRatio: minRatio}
}

func (a *Consensus) Name() string { return "consensus" }

func (a *Consensus) Aggregate(signals []models.StrategySignal, _ *models.MarketWindow) models.AggregatedDecision {
	if len(signals) == 0 {
		return models.NewHoldDecision(ReasonNoSignals, nil)
	}

	counts := make(map[models.SignalType]int, 3)
	votes := make(map[string]models.SignalType, len(signals))
	for _, s := range signals {
		counts[s.Signal]++
		votes[s.Producer] = s.Signal
	}

	total := float64(len(signals))
	// Fixed evaluation order keeps the result deterministic even for
	// ratios where two values could qualify.
	for _, st := range []models.SignalType{models.Buy, models.Sell, models.Hold} {
		ratio := float64(counts[st]) / total
		if ratio >= a.minRatio {
			d, _ := models.NewAggregatedDecision(st, ratio, votes,
				fmt.Sprintf("Consensus %.1f%% for %s", ratio*100, st))
			return d
		}
	}

	return models.NewHoldDecision(
		fmt.Sprintf("No consensus (requires %.1f%%)", a.minRatio*100), votes)
}

var _ domsvc.Aggregator = (*Consensus)(nil)
