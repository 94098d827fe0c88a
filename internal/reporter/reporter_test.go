package reporter

import (
	"context"
	"errors"
	"testing"

	"binance-signal-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type staticSource struct {
	trades []models.TradeRecord
	err    error
}

func (s staticSource) All(ctx context.Context) ([]models.TradeRecord, error) {
	return s.trades, s.err
}

func trade(sym string, side models.Side, qty, price float64) models.TradeRecord {
	return models.TradeRecord{Symbol: sym, Side: side, Amount: qty, Price: price}
}

func TestCalculate(t *testing.T) {
	trades := []models.TradeRecord{
		trade("BTCUSDT", models.Buy, 1, 100),
		trade("ETHUSDT", models.Buy, 2, 10),
		trade("BTCUSDT", models.Sell, 1, 110), // +10
		trade("BTCUSDT", models.Buy, 1, 120),
		trade("BTCUSDT", models.Sell, 1, 105), // -15
		trade("ETHUSDT", models.Sell, 2, 12),  // +4
		trade("ETHUSDT", models.Buy, 3, 11),   // still open
	}

	got := Calculate(trades)
	require.Len(t, got, 2)

	btc := got[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, 2, btc.Buys)
	assert.Equal(t, 2, btc.Sells)
	assert.Equal(t, 2, btc.RoundTrips)
	assert.Equal(t, 1, btc.WinningTrades)
	assert.Equal(t, 1, btc.LosingTrades)
	assert.InDelta(t, 50.0, btc.WinRate, 1e-9)
	assert.InDelta(t, -5.0, btc.RealizedPNL, 1e-9)
	assert.InDelta(t, 15.0, btc.MaxDrawdown, 1e-9)
	assert.Equal(t, 105.0, btc.LastPrice)
	assert.False(t, btc.OpenAtEnd)

	eth := got[1]
	assert.InDelta(t, 4.0, eth.RealizedPNL, 1e-9)
	assert.True(t, eth.OpenAtEnd)
	assert.Equal(t, 3.0, eth.OpenQty)
	assert.Equal(t, 11.0, eth.OpenEntryPrice)
}

func TestCalculate_SellWithoutBuy(t *testing.T) {
	got := Calculate([]models.TradeRecord{trade("BNBUSDT", models.Sell, 1, 500)})
	require.Len(t, got, 1)
	assert.Zero(t, got[0].RoundTrips)
	assert.Zero(t, got[0].RealizedPNL)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	assert.Zero(t, calculateMaxDrawdown(nil))
	assert.InDelta(t, 7.0, calculateMaxDrawdown([]float64{5, 10, 3, 8}), 1e-9)
	assert.InDelta(t, 4.0, calculateMaxDrawdown([]float64{-4, -1}), 1e-9)
}

func TestRender(t *testing.T) {
	out := Render(Calculate([]models.TradeRecord{
		trade("BTCUSDT", models.Buy, 1, 100),
		trade("BTCUSDT", models.Sell, 1, 110),
	}))
	assert.Contains(t, out, "Session Report")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "10.00")
	assert.Contains(t, out, "100.00%")
}

func TestReport_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := New(staticSource{trades: []models.TradeRecord{trade("BTCUSDT", models.Buy, 1, 100)}}, zap.New(core))

	require.NoError(t, r.Report(context.Background()))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "BTCUSDT")
}

func TestReport_SourceError(t *testing.T) {
	r := New(staticSource{err: errors.New("db closed")}, zap.NewNop())
	assert.Error(t, r.Report(context.Background()))
}
