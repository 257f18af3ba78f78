// Package aggregate folds per-strategy signals into one actionable
// decision. Three interchangeable modes exist: weighted voting, consensus
// and an adaptive selector that picks between the two from the observed
// market regime.
package aggregate

import (
	"fmt"

	domsvc "FinTrade/internal/domain/service"
)

// Aggregator names accepted in configuration.
const (
	NameWeightedVoting = "weighted_voting"
	NameConsensus      = "consensus"
	NameAdaptive       = "adaptive"
)

// New selects an aggregator implementation by configured name. An empty
// name falls back to adaptive.
func New(name string, weights map[string]float64, minConsensusRatio, volatilityThreshold float64) (domsvc.Aggregator, error) {
	switch name {
	case NameWeightedVoting:
		return NewWeightedVoting(weights), nil
	case NameConsensus:
		return NewConsensus(minConsensusRatio), nil
	case NameAdaptive, "":
		return NewAdaptive(weights, minConsensusRatio, volatilityThreshold), nil
	default:
		return nil, fmt.Errorf("unknown aggregator %q", name)
	}
}
