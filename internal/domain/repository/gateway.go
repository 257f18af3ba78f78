package repository

import (
	"context"

	"FinTrade/internal/domain/models"
)

// ExchangeGateway is the market access contract the engine consumes:
// recent prices (with indicator columns attached), balances, open
// positions and order placement. Implementations decide where the data
// comes from; the engine only sees this surface.
type ExchangeGateway interface {
	RecentPrices(ctx context.Context, symbol string, tf Timeframe, limit int) (*models.MarketWindow, error)
	Balance(ctx context.Context) (map[string]float64, error)
	OpenPosition(ctx context.Context, symbol string) (models.Position, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	Close() error
}
