package models

import (
	"errors"
	"fmt"
	"time"
)

// SignalType is a trading direction: Buy (+1), Sell (-1) or Hold (0).
type SignalType int

const (
	Sell SignalType = -1
	Hold SignalType = 0
	Buy  SignalType = 1
)

func (s SignalType) Valid() bool {
	switch s {
	case Buy, Sell, Hold:
		return true
	default:
		return false
	}
}

func (s SignalType) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	default:
		return fmt.Sprintf("SignalType(%d)", int(s))
	}
}

// MarshalJSON writes the direction name, keeping wire payloads readable.
func (s SignalType) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSignal, int(s))
	}
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts both the direction name and the numeric form.
func (s *SignalType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, "1":
		*s = Buy
	case `"SELL"`, "-1":
		*s = Sell
	case `"HOLD"`, "0":
		*s = Hold
	default:
		return fmt.Errorf("%w: got %s", ErrInvalidSignal, data)
	}
	return nil
}

var (
	ErrInvalidSignal     = errors.New("signal must be -1, 0 or 1")
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrEmptyProducer     = errors.New("producer name must not be empty")
)

// StrategySignal is a single strategy's opinion for one evaluation cycle.
// Values are validated at construction and never mutated afterwards.
type StrategySignal struct {
	Producer   string
	Signal     SignalType
	Confidence float64
	Timestamp  time.Time
	Metadata   map[string]any
}

// NewStrategySignal validates the raw producer output and wraps it into an
// immutable signal. Out-of-range values are rejected, not clamped.
func NewStrategySignal(producer string, signal int, confidence float64, metadata map[string]any) (StrategySignal, error) {
	if producer == "" {
		return StrategySignal{}, ErrEmptyProducer
	}
	st := SignalType(signal)
	if !st.Valid() {
		return StrategySignal{}, fmt.Errorf("producer %s: %w: got %d", producer, ErrInvalidSignal, signal)
	}
	if confidence < 0 || confidence > 1 {
		return StrategySignal{}, fmt.Errorf("producer %s: %w: got %f", producer, ErrInvalidConfidence, confidence)
	}
	return StrategySignal{
		Producer:   producer,
		Signal:     st,
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	}, nil
}
