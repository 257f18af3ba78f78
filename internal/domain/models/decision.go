package models

import (
	"fmt"
	"time"
)

// AggregatedDecision is the single actionable outcome of one aggregation
// round: what to do, how sure, who voted which way, and why.
// Note: no transport (json/http) concerns here.
type AggregatedDecision struct {
	Action     SignalType
	Confidence float64
	Votes      map[string]SignalType
	Reasoning  string
	Timestamp  time.Time
}

// NewAggregatedDecision validates and builds a decision. Votes must contain
// every producer that contributed a signal this round, including holders.
func NewAggregatedDecision(action SignalType, confidence float64, votes map[string]SignalType, reasoning string) (AggregatedDecision, error) {
	if !action.Valid() {
		return AggregatedDecision{}, fmt.Errorf("%w: got %d", ErrInvalidSignal, int(action))
	}
	if confidence < 0 || confidence > 1 {
		return AggregatedDecision{}, fmt.Errorf("%w: got %f", ErrInvalidConfidence, confidence)
	}
	return AggregatedDecision{
		Action:     action,
		Confidence: confidence,
		Votes:      votes,
		Reasoning:  reasoning,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// NewHoldDecision builds the always-valid fallback decision with zero
// confidence. Used whenever no actionable outcome exists.
func NewHoldDecision(reasoning string, votes map[string]SignalType) AggregatedDecision {
	if votes == nil {
		votes = map[string]SignalType{}
	}
	return AggregatedDecision{
		Action:     Hold,
		Confidence: 0,
		Votes:      votes,
		Reasoning:  reasoning,
		Timestamp:  time.Now().UTC(),
	}
}

// Annotate returns a copy of the decision with suffix appended to the
// reasoning. The receiver is left untouched.
func (d AggregatedDecision) Annotate(suffix string) AggregatedDecision {
	d.Reasoning += suffix
	return d
}
