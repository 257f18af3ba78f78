// Package producers holds the built-in strategy producers. Each one reads
// pre-computed indicator columns off the market window and yields a raw
// direction; none of them computes indicators itself.
package producers

import (
	"fmt"
	"math"

	domsvc "FinTrade/internal/domain/service"
)

// Registry names. They double as keys in the aggregation weight map.
const (
	NameRSI        = "RSI"
	NameMACD       = "MACD"
	NameBollinger  = "BOLLINGER"
	NameStochastic = "STOCHASTIC"
	NameWilliamsR  = "WILLIAMS_R"
	NameModel      = "XGB"
)

// Build instantiates the named rule producers with default parameters.
// The model scorer is constructed separately since it needs a remote
// endpoint.
func Build(enabled []string) ([]domsvc.Producer, error) {
	out := make([]domsvc.Producer, 0, len(enabled))
	for _, name := range enabled {
		switch name {
		case NameRSI:
			out = append(out, NewRSI())
		case NameMACD:
			out = append(out, NewMACDCrossover())
		case NameBollinger:
			out = append(out, NewBollingerMeanReversion())
		case NameStochastic:
			out = append(out, NewStochasticOscillator())
		case NameWilliamsR:
			out = append(out, NewWilliamsR())
		default:
			return nil, fmt.Errorf("unknown producer %q", name)
		}
	}
	return out, nil
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
