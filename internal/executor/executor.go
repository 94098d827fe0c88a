// Package executor 负责提交开仓、平仓和止盈止损订单，并记录每一笔成交。
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"binance-signal-bot-go/internal/exchange"
	"binance-signal-bot-go/internal/metrics"
	"binance-signal-bot-go/internal/models"
	"binance-signal-bot-go/internal/notifier"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// stopTriggerOffset 使止损触发价比止损限价高 0.1%
const stopTriggerOffset = 1.001

// TradeLedger 是交易账本的写入部分
type TradeLedger interface {
	Append(ctx context.Context, rec models.TradeRecord) (int64, error)
}

// BracketResult 记录止损和止盈两条腿的结果
type BracketResult struct {
	StopLoss      float64
	TakeProfit    float64
	StopTrigger   float64
	StopOrderID   int64
	TakeOrderID   int64
	StopLossErr   error
	TakeProfitErr error
}

// OK 两条腿都被接受时返回 true
func (r BracketResult) OK() bool {
	return r.StopLossErr == nil && r.TakeProfitErr == nil
}

// Executor 代表所有交易对循环下单
type Executor struct {
	orders   exchange.OrderPlacer
	ledger   TradeLedger
	notifier notifier.Notifier
	slMult   float64
	tpMult   float64
	logger   *zap.Logger
	seq      atomic.Uint64
	now      func() time.Time
}

// New 创建 Executor。slMult 和 tpMult 把波动率换算为止损和止盈距离。
func New(orders exchange.OrderPlacer, ledger TradeLedger, n notifier.Notifier, slMult, tpMult float64, logger *zap.Logger) *Executor {
	return &Executor{
		orders:   orders,
		ledger:   ledger,
		notifier: n,
		slMult:   slMult,
		tpMult:   tpMult,
		logger:   logger,
		now:      time.Now,
	}
}

// newClientOrderID 生成币安接受的唯一短ID（最多36个 [A-Za-z0-9_-] 字符）
func (e *Executor) newClientOrderID(prefix string) string {
	ts := base62.FormatInt(e.now().UnixNano())
	seq := base62.FormatUint(e.seq.Add(1))
	return fmt.Sprintf("%s-%s-%s", prefix, ts, seq)
}

// SubmitOrder 按计价货币金额提交市价单。
// 失败时记录日志并通知，返回 (nil, false)，从不向调用方返回错误。
func (e *Executor) SubmitOrder(ctx context.Context, side models.Side, symbol string, amount, rsi float64) (*models.Fill, bool) {
	clientID := e.newClientOrderID("sig")
	log := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
		zap.Float64("rsi", rsi),
		zap.String("client_order_id", clientID))
	log.Info("submitting market order")

	fill, err := e.orders.SubmitMarketOrder(ctx, symbol, side, amount, clientID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// 订单可能已在服务端成交
			log.Warn("market order interrupted by shutdown", zap.Error(err))
			metrics.OrdersTotal.WithLabelValues(symbol, string(side), "cancelled").Inc()
			return nil, false
		}
		result := "error"
		if exchange.IsRejection(err) {
			result = "rejected"
		}
		metrics.OrdersTotal.WithLabelValues(symbol, string(side), result).Inc()
		log.Error("market order failed", zap.String("result", result), zap.Error(err))
		e.notify(ctx, fmt.Sprintf("❌ %s %s order failed: %v", side, symbol, err))
		return nil, false
	}

	metrics.OrdersTotal.WithLabelValues(symbol, string(side), "filled").Inc()
	log.Info("market order filled",
		zap.Int64("order_id", fill.OrderID),
		zap.Float64("executed_qty", fill.ExecutedQty),
		zap.Float64("avg_price", fill.AvgPrice))

	// 已确认的成交即使在关闭过程中也要入账
	ctx = context.WithoutCancel(ctx)
	ts := fill.TransactTime
	if ts.IsZero() {
		ts = e.now()
	}
	id, err := e.ledger.Append(ctx, models.TradeRecord{
		Symbol:    symbol,
		Side:      side,
		Amount:    fill.ExecutedQty,
		Price:     fill.AvgPrice,
		RSI:       rsi,
		Timestamp: ts,
	})
	if err != nil {
		log.Error("failed to record trade in ledger", zap.Int64("order_id", fill.OrderID), zap.Error(err))
	} else {
		log.Debug("trade recorded", zap.Int64("ledger_id", id))
	}

	e.notify(ctx, fmt.Sprintf("✅ %s %s: qty %s @ %s (RSI %.2f)",
		side, symbol, formatNumber(fill.ExecutedQty), formatNumber(fill.AvgPrice), rsi))
	return fill, true
}

// PlaceBracket 为持仓提交止损限价卖单和止盈限价卖单。
// 两条腿互相独立：失败的一条只会通知，另一条和开仓单都保持不变。
func (e *Executor) PlaceBracket(ctx context.Context, symbol string, qty, entryPrice, volatility float64) BracketResult {
	sl, tp := BracketPrices(entryPrice, volatility, e.slMult, e.tpMult)
	res := BracketResult{
		StopLoss:    sl,
		TakeProfit:  tp,
		StopTrigger: Round2(sl * stopTriggerOffset),
	}
	log := e.logger.With(zap.String("symbol", symbol), zap.Float64("qty", qty), zap.Float64("entry", entryPrice))
	log.Info("placing exit bracket",
		zap.Float64("stop_loss", sl),
		zap.Float64("stop_trigger", res.StopTrigger),
		zap.Float64("take_profit", tp))

	res.StopOrderID, res.StopLossErr = e.orders.SubmitBracketOrder(ctx, models.BracketOrderRequest{
		Symbol:        symbol,
		Side:          models.Sell,
		Type:          models.OrderTypeStopLossLimit,
		Quantity:      qty,
		Price:         sl,
		StopPrice:     res.StopTrigger,
		TimeInForce:   "GTC",
		ClientOrderID: e.newClientOrderID("sl"),
	})
	if res.StopLossErr != nil {
		metrics.OrdersTotal.WithLabelValues(symbol, string(models.Sell), "stop_loss_failed").Inc()
		log.Error("stop-loss placement failed", zap.Error(res.StopLossErr))
		e.notify(ctx, fmt.Sprintf("⚠️ %s stop-loss at %s not placed: %v", symbol, formatNumber(sl), res.StopLossErr))
	}

	res.TakeOrderID, res.TakeProfitErr = e.orders.SubmitBracketOrder(ctx, models.BracketOrderRequest{
		Symbol:        symbol,
		Side:          models.Sell,
		Type:          models.OrderTypeLimit,
		Quantity:      qty,
		Price:         tp,
		TimeInForce:   "GTC",
		ClientOrderID: e.newClientOrderID("tp"),
	})
	if res.TakeProfitErr != nil {
		metrics.OrdersTotal.WithLabelValues(symbol, string(models.Sell), "take_profit_failed").Inc()
		log.Error("take-profit placement failed", zap.Error(res.TakeProfitErr))
		e.notify(ctx, fmt.Sprintf("⚠️ %s take-profit at %s not placed: %v", symbol, formatNumber(tp), res.TakeProfitErr))
	}

	if res.OK() {
		log.Info("exit bracket placed", zap.Int64("stop_order_id", res.StopOrderID), zap.Int64("take_order_id", res.TakeOrderID))
		e.notify(ctx, fmt.Sprintf("🛡 %s bracket: SL %s / TP %s", symbol, formatNumber(sl), formatNumber(tp)))
	}
	return res
}

// Notify 转发消息给操作员，发送失败只记录日志
func (e *Executor) Notify(ctx context.Context, text string) {
	e.notify(ctx, text)
}

func (e *Executor) notify(ctx context.Context, text string) {
	if err := e.notifier.Send(ctx, text); err != nil {
		e.logger.Warn("notification failed", zap.String("text", text), zap.Error(err))
	}
}

// BracketPrices 返回保留两位小数的止损价和止盈价
func BracketPrices(entry, volatility, slMult, tpMult float64) (stopLoss, takeProfit float64) {
	return Round2(entry - volatility*slMult), Round2(entry + volatility*tpMult)
}

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%.8g", v)
}
