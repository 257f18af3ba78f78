package models

import "time"

// CycleSnapshot is the state emitted after every decision cycle. It is the
// wire contract for external observers (state sink, event stream, websocket,
// operator API), hence the json tags.
type CycleSnapshot struct {
	Timestamp    time.Time             `json:"timestamp"`
	Symbol       string                `json:"symbol"`
	Cycle        int64                 `json:"cycle"`
	Action       SignalType            `json:"action"`
	Confidence   float64               `json:"confidence"`
	Reasoning    string                `json:"reasoning"`
	Votes        map[string]SignalType `json:"votes,omitempty"`
	Price        float64               `json:"price"`
	PositionSize float64               `json:"position_size"`
	LastAction   int                   `json:"last_action"`
	TradeCount   int64                 `json:"trade_count"`
	BuyCount     int64                 `json:"buy_count"`
	SellCount    int64                 `json:"sell_count"`
	HoldCount    int64                 `json:"hold_count"`
}

// DecisionRecord is the flattened decision row for the audit trail. It is
// both the Kafka event payload and the ClickHouse row shape.
type DecisionRecord struct {
	Timestamp  time.Time             `json:"timestamp"`
	Symbol     string                `json:"symbol"`
	Cycle      int64                 `json:"cycle"`
	Action     SignalType            `json:"action"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning"`
	Votes      map[string]SignalType `json:"votes,omitempty"`
	Price      float64               `json:"price"`
}

// ProducerPerformance summarizes one producer's contribution, derived from
// the signal history.
type ProducerPerformance struct {
	Status        ProducerStatus `json:"status"`
	TotalSignals  int            `json:"total_signals"`
	BuySignals    int            `json:"buy_signals"`
	SellSignals   int            `json:"sell_signals"`
	HoldSignals   int            `json:"hold_signals"`
	AvgConfidence float64        `json:"avg_confidence"`
	LastError     string         `json:"last_error,omitempty"`
}

// EngineStats is the execution counter block owned by the trading engine.
type EngineStats struct {
	Symbol       string     `json:"symbol"`
	Timeframe    string     `json:"timeframe"`
	Cycle        int64      `json:"cycle"`
	MissedCycles int64      `json:"missed_cycles"`
	TradeCount   int64      `json:"trade_count"`
	BuyCount     int64      `json:"buy_count"`
	SellCount    int64      `json:"sell_count"`
	HoldCount    int64      `json:"hold_count"`
	PositionSize float64    `json:"position_size"`
	LastAction   int        `json:"last_action"`
	LastDecision *time.Time `json:"last_decision_time,omitempty"`
}
