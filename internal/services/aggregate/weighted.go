package aggregate

import (
	"fmt"
	"math"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// Reasoning attached when an aggregator receives zero signals.
const ReasonNoSignals = "no signals available"

// votingThreshold is the fixed minimum a bucket must exceed before the
// voting aggregator acts.
const votingThreshold = 0.5

// WeightedVoting weighs every producer vote by its configured weight and
// reported confidence, sums the buy and sell buckets, and acts when the
// stronger bucket beats both the other bucket and the fixed threshold.
type WeightedVoting struct {
	weights map[string]float64
}

// NewWeightedVoting builds the aggregator. Producers absent from weights
// vote with weight 1.0.
func NewWeightedVoting(weights map[string]float64) *WeightedVoting {
	if weights == nil {
		weights = map[string]float64{}
	}
	return &WeightedVoting{weights: weights}
}

func (a *WeightedVoting) Name() string { return "weighted_voting" }

func (a *WeightedVoting) Aggregate(signals []models.StrategySignal, _ *models.MarketWindow) models.AggregatedDecision {
	if len(signals) == 0 {
		return models.NewHoldDecision(ReasonNoSignals, nil)
	}

	votes := make(map[string]models.SignalType, len(signals))
	var buyBucket, sellBucket float64
	for _, s := range signals {
		votes[s.Producer] = s.Signal

		weight, ok := a.weights[s.Producer]
		if !ok {
			weight = 1.0
		}
		vote := float64(s.Signal) * weight * s.Confidence
		switch {
		case vote > 0:
			buyBucket += vote
		case vote < 0:
			sellBucket -= vote
		}
	}

	switch {
	case buyBucket > sellBucket && buyBucket > votingThreshold:
		conf := math.Min(buyBucket, 1.0)
		d, _ := models.NewAggregatedDecision(models.Buy, conf, votes,
			fmt.Sprintf("BUY signal with confidence %.2f", conf))
		return d
	case sellBucket > buyBucket && sellBucket > votingThreshold:
		conf := math.Min(sellBucket, 1.0)
		d, _ := models.NewAggregatedDecision(models.Sell, conf, votes,
			fmt.Sprintf("SELL signal with confidence %.2f", conf))
		return d
	default:
		return models.NewHoldDecision("Insufficient confidence for action", votes)
	}
}

var _ domsvc.Aggregator = (*WeightedVoting)(nil)
