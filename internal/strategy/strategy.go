// Package strategy 把指标值转换为交易信号。
package strategy

import (
	"fmt"

	"binance-signal-bot-go/internal/indicator"
	"binance-signal-bot-go/internal/models"
)

// Strategy 根据单个交易对最近的K线窗口给出信号
type Strategy interface {
	Name() string
	Signal(bars []models.Bar) models.Signal
}

// Params 是单个交易对的策略参数
type Params struct {
	RSIPeriod     int
	ATRPeriod     int
	BuyThreshold  float64
	SellThreshold float64
}

const (
	KindRSI    = "rsi"
	KindRSIATR = "rsi_atr"
	KindInline = "inline"
)

// New 按名称构建策略。kind 为空或 KindInline 时返回 nil，
// 由交易循环自己比较阈值。
func New(kind string, p Params) (Strategy, error) {
	switch kind {
	case "", KindInline:
		return nil, nil
	case KindRSI:
		return &RSIStrategy{Params: p}, nil
	case KindRSIATR:
		return &RSIATRStrategy{RSIStrategy: RSIStrategy{Params: p}}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}

// Decide 对 RSI 应用阈值规则（包含边界）
func Decide(rsi, buyThreshold, sellThreshold float64) models.Signal {
	switch {
	case rsi <= buyThreshold:
		return models.SignalBuy
	case rsi >= sellThreshold:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// RSIStrategy 超卖买入，超买卖出
type RSIStrategy struct {
	Params
}

func (s *RSIStrategy) Name() string { return KindRSI }

func (s *RSIStrategy) Signal(bars []models.Bar) models.Signal {
	if len(bars) < s.RSIPeriod {
		return models.SignalHold
	}
	rsi, ok := indicator.RSI(models.Closes(bars), s.RSIPeriod)
	if !ok {
		return models.SignalHold
	}
	return Decide(rsi, s.BuyThreshold, s.SellThreshold)
}

// RSIATRStrategy 用 RSI 判断方向，ATR 只用于计算止盈止损，不影响信号
type RSIATRStrategy struct {
	RSIStrategy
}

func (s *RSIATRStrategy) Name() string { return KindRSIATR }

func (s *RSIATRStrategy) Signal(bars []models.Bar) models.Signal {
	return s.RSIStrategy.Signal(bars)
}

// Volatility 在历史足够时返回 ATR
func (s *RSIATRStrategy) Volatility(bars []models.Bar) (float64, bool) {
	snap := indicator.Compute(bars, s.RSIPeriod, s.ATRPeriod)
	return snap.ATR, snap.ATRValid
}
