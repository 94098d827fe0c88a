package exchange

import (
	"context"
	"errors"

	"binance-signal-bot-go/internal/models"
)

// MarketData 提供K线数据。
type MarketData interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error)
}

// OrderPlacer 定义了下单所需的交易所操作。
// 真实交易和纸面交易都实现该接口，机器人可以在两者之间切换。
type OrderPlacer interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, quoteAmount float64, clientOrderID string) (*models.Fill, error)
	SubmitBracketOrder(ctx context.Context, req models.BracketOrderRequest) (int64, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
}

// IsRejection reports whether err is a permanent exchange rejection.
func IsRejection(err error) bool {
	var apiErr *models.APIError
	return errors.As(err, &apiErr)
}
