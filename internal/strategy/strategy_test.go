package strategy

import (
	"testing"

	"binance-signal-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(closes ...float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return out
}

var defaultParams = Params{RSIPeriod: 14, ATRPeriod: 14, BuyThreshold: 30, SellThreshold: 70}

func TestNew(t *testing.T) {
	s, err := New(KindRSI, defaultParams)
	require.NoError(t, err)
	assert.Equal(t, KindRSI, s.Name())

	s, err = New(KindRSIATR, defaultParams)
	require.NoError(t, err)
	assert.Equal(t, KindRSIATR, s.Name())

	s, err = New("", defaultParams)
	require.NoError(t, err)
	assert.Nil(t, s, "empty kind means the loop compares thresholds inline")

	_, err = New("macd", defaultParams)
	assert.Error(t, err)
}

func TestDecide_InclusiveBoundaries(t *testing.T) {
	assert.Equal(t, models.SignalBuy, Decide(30, 30, 70))
	assert.Equal(t, models.SignalSell, Decide(70, 30, 70))
	assert.Equal(t, models.SignalHold, Decide(50, 30, 70))
	assert.Equal(t, models.SignalBuy, Decide(0, 30, 70))
	assert.Equal(t, models.SignalSell, Decide(100, 30, 70))
}

func TestSignal_ShortHistoryIsHold(t *testing.T) {
	// every window shorter than the period must hold, whatever the thresholds
	p := Params{RSIPeriod: 14, ATRPeriod: 14, BuyThreshold: 100, SellThreshold: 100}
	for _, kind := range []string{KindRSI, KindRSIATR} {
		s, err := New(kind, p)
		require.NoError(t, err)
		for n := 0; n < p.RSIPeriod; n++ {
			closes := make([]float64, n)
			for i := range closes {
				closes[i] = float64(100 - i)
			}
			assert.Equal(t, models.SignalHold, s.Signal(bars(closes...)), "%s with %d bars", kind, n)
		}
	}
}

func TestSignal_DowntrendBuys(t *testing.T) {
	// RSI of this window is ~28.15
	window := bars(100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 91)

	for _, kind := range []string{KindRSI, KindRSIATR} {
		s, err := New(kind, defaultParams)
		require.NoError(t, err)
		assert.Equal(t, models.SignalBuy, s.Signal(window), kind)
	}
}

func TestSignal_UptrendSells(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	s, err := New(KindRSI, defaultParams)
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, s.Signal(bars(closes...)))
}

func TestSignal_NeutralHolds(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100}
	s, err := New(KindRSI, defaultParams)
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, s.Signal(bars(closes...)))
}

func TestRSIATR_VolatilityDoesNotChangeSignal(t *testing.T) {
	window := bars(100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 91)
	plain := &RSIStrategy{Params: defaultParams}
	withATR := &RSIATRStrategy{RSIStrategy: RSIStrategy{Params: defaultParams}}

	assert.Equal(t, plain.Signal(window), withATR.Signal(window))

	atr, ok := withATR.Volatility(window)
	require.True(t, ok)
	assert.Greater(t, atr, 0.0)
}
