package exchange

import (
	"context"
	"testing"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bar(t time.Time, o, h, l, c float64) models.Bar {
	return models.Bar{OpenTime: t, Open: o, High: h, Low: l, Close: c}
}

func TestPaperExchange_MarketOrderNeedsPrice(t *testing.T) {
	e := NewPaperExchange(0, zap.NewNop())
	_, err := e.SubmitMarketOrder(context.Background(), "BTCUSDT", models.Buy, 100, "")
	assert.True(t, IsRejection(err))
}

func TestPaperExchange_BuyThenSell(t *testing.T) {
	e := NewPaperExchange(0.001, zap.NewNop())
	t0 := time.Unix(0, 0)
	e.Observe("BTCUSDT", bar(t0, 100, 100, 100, 100))

	buy, err := e.SubmitMarketOrder(context.Background(), "BTCUSDT", models.Buy, 100.1, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 100.1, buy.AvgPrice, 1e-9, "buy pays slippage")
	assert.InDelta(t, 1.0, buy.ExecutedQty, 1e-9)
	assert.InDelta(t, 1.0, e.Holding("BTCUSDT"), 1e-9)

	_, err = e.SubmitMarketOrder(context.Background(), "BTCUSDT", models.Sell, 500, "c2")
	require.Error(t, err, "cannot sell more than held")
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, codeInsufficientBalance, apiErr.Code)

	sell, err := e.SubmitMarketOrder(context.Background(), "BTCUSDT", models.Sell, 49.95, "c3")
	require.NoError(t, err)
	assert.InDelta(t, 99.9, sell.AvgPrice, 1e-9)
	assert.InDelta(t, 0.5, e.Holding("BTCUSDT"), 1e-9)
	assert.Len(t, e.Fills(), 2)
}

func TestPaperExchange_BracketLegsFill(t *testing.T) {
	ctx := context.Background()
	e := NewPaperExchange(0, zap.NewNop())
	t0 := time.Unix(0, 0)
	e.Observe("BTCUSDT", bar(t0, 100, 100, 100, 100))
	_, err := e.SubmitMarketOrder(ctx, "BTCUSDT", models.Buy, 100, "")
	require.NoError(t, err)

	slID, err := e.SubmitBracketOrder(ctx, models.BracketOrderRequest{
		Symbol: "BTCUSDT", Side: models.Sell, Type: models.OrderTypeStopLossLimit,
		Quantity: 1, Price: 97, StopPrice: 97.1, TimeInForce: "GTC",
	})
	require.NoError(t, err)
	tpID, err := e.SubmitBracketOrder(ctx, models.BracketOrderRequest{
		Symbol: "BTCUSDT", Side: models.Sell, Type: models.OrderTypeLimit,
		Quantity: 1, Price: 104, TimeInForce: "GTC",
	})
	require.NoError(t, err)

	open, err := e.OpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	// The high touches the take-profit.
	e.Observe("BTCUSDT", bar(t0.Add(time.Hour), 101, 104.5, 100.5, 103))
	open, _ = e.OpenOrders(ctx, "BTCUSDT")
	require.Len(t, open, 1)
	assert.Equal(t, slID, open[0].OrderID)
	assert.Zero(t, e.Holding("BTCUSDT"))

	// The stop triggers but nothing is left to sell.
	e.Observe("BTCUSDT", bar(t0.Add(2*time.Hour), 103, 103, 95, 97))
	open, _ = e.OpenOrders(ctx, "BTCUSDT")
	assert.Empty(t, open)

	fills := e.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, tpID, fills[1].OrderID)
	assert.Equal(t, 104.0, fills[1].AvgPrice)
}

func TestPaperExchange_StopLossRequiresStopPrice(t *testing.T) {
	e := NewPaperExchange(0, zap.NewNop())
	_, err := e.SubmitBracketOrder(context.Background(), models.BracketOrderRequest{
		Symbol: "BTCUSDT", Side: models.Sell, Type: models.OrderTypeStopLossLimit, Quantity: 1, Price: 97,
	})
	assert.True(t, IsRejection(err))
}

func TestPaperExchange_TrackObservesLatestBar(t *testing.T) {
	e := NewPaperExchange(0, zap.NewNop())
	md := &scriptedMarketData{bars: []models.Bar{
		bar(time.Unix(0, 0), 1, 1, 1, 1),
		bar(time.Unix(3600, 0), 2, 2, 2, 2),
	}}

	_, err := e.Track(md).FetchBars(context.Background(), "ETHUSDT", "1h", 2)
	require.NoError(t, err)

	fill, err := e.SubmitMarketOrder(context.Background(), "ETHUSDT", models.Buy, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, fill.AvgPrice)
}
