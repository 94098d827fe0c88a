// Package indicator 计算策略使用的动量和波动率指标，所有函数都是纯函数。
package indicator

import (
	"math"

	"binance-signal-bot-go/internal/models"
)

// Snapshot 是一个K线窗口的最新指标值
type Snapshot struct {
	RSI      float64
	ATR      float64
	RSIValid bool
	ATRValid bool
}

// Compute 从K线计算最新的 RSI 和 ATR
func Compute(bars []models.Bar, rsiPeriod, atrPeriod int) Snapshot {
	var s Snapshot
	s.RSI, s.RSIValid = RSI(models.Closes(bars), rsiPeriod)

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	s.ATR, s.ATRValid = ATR(highs, lows, closes, atrPeriod)
	return s
}

// RSI 返回收盘价序列最新的相对强弱指数。
//
// 第一根K线的涨跌记为 0。涨跌幅用 Wilder 平均（alpha = 1/period）平滑，
// 以第一个值为初值，因此有 period 根K线即可得到结果。
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period {
		return 0, false
	}

	alpha := 1.0 / float64(period)
	var avgUp, avgDown float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if change > 0 {
			up = change
		} else {
			down = -change
		}
		avgUp = (1-alpha)*avgUp + alpha*up
		avgDown = (1-alpha)*avgDown + alpha*down
	}

	if avgDown == 0 {
		return 100, true
	}
	rs := avgUp / avgDown
	return 100 - 100/(1+rs), true
}

// ATR 返回最新的平均真实波幅。
//
// 第一根K线没有前收盘价，真实波幅为 high-low。
// 先用前 period 个真实波幅的均值作为初值，再对其余K线做 Wilder 平滑。
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period || len(highs) != n || len(lows) != n {
		return 0, false
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		tr[i] = TrueRange(highs[i], lows[i], closes[i-1])
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
	}
	return atr, true
}

// TrueRange 计算 max(high-low, |high-prevClose|, |low-prevClose|)
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
