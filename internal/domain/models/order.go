package models

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderRejected OrderStatus = "rejected"
)

// OrderRequest is what the engine hands to a gateway. Price is only
// meaningful for limit orders.
type OrderRequest struct {
	Symbol string
	Side   OrderSide
	Type   OrderType
	Qty    float64
	Price  float64
}

// Order is the gateway's fill report.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Price     float64
	Qty       float64
	Filled    float64
	Cost      float64
	Fee       float64
	FeeAsset  string
	Status    OrderStatus
	Timestamp time.Time
}

// Position is the gateway's view of the open position for one symbol.
// Size 0 means flat.
type Position struct {
	Symbol        string
	Size          float64
	AvgPrice      float64
	MarkPrice     float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Timestamp     time.Time
}
