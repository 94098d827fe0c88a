package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"binance-signal-bot-go/internal/indicator"
	"binance-signal-bot-go/internal/metrics"
	"binance-signal-bot-go/internal/models"
	"binance-signal-bot-go/internal/strategy"

	"go.uber.org/zap"
)

// volatilitySource 由根据 ATR 计算止盈止损的策略实现
type volatilitySource interface {
	Volatility(bars []models.Bar) (float64, bool)
}

// symbolLoop 是单个交易对的 获取行情-决策-下单-休眠 循环
type symbolLoop struct {
	bot      *SignalBot
	cfg      models.SymbolConfig
	strategy strategy.Strategy // 为 nil 时直接比较阈值
	logger   *zap.Logger
}

func (s *symbolLoop) run(ctx context.Context) {
	s.logger.Info("trading loop started")
	defer s.logger.Info("trading loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.cycle(ctx); err != nil && ctx.Err() == nil {
			metrics.CycleErrors.WithLabelValues(s.cfg.Symbol).Inc()
			s.logger.Error("trading cycle failed", zap.Error(err))
		}
		if !sleepCtx(ctx, s.bot.interval) {
			return
		}
	}
}

// cycle 执行一次迭代。panic 会被转换为错误，循环继续运行。
func (s *symbolLoop) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in trading cycle: %v\n%s", r, debug.Stack())
		}
	}()

	cfg := s.bot.config
	bars, err := s.bot.deps.Market.FetchBars(ctx, s.cfg.Symbol, cfg.CandleInterval, cfg.KlineLimit)
	if err != nil {
		return fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		s.logger.Warn("no market data received, skipping cycle")
		return nil
	}

	price := bars[len(bars)-1].Close
	snap := indicator.Compute(bars, cfg.RSIPeriod, cfg.ATRPeriod)
	signal := s.signal(bars, snap)
	metrics.SignalsTotal.WithLabelValues(s.cfg.Symbol, string(signal)).Inc()

	tracker := s.bot.deps.Tracker
	open := tracker.IsOpen(s.cfg.Symbol)
	s.logger.Debug("cycle evaluated",
		zap.Float64("price", price),
		zap.Float64("rsi", snap.RSI),
		zap.Float64("atr", snap.ATR),
		zap.String("signal", string(signal)),
		zap.Bool("position_open", open))

	switch {
	case signal == models.SignalBuy && !open:
		s.enter(ctx, bars, price, snap)
	case signal == models.SignalSell && open:
		s.exit(ctx, snap)
	}
	return nil
}

func (s *symbolLoop) signal(bars []models.Bar, snap indicator.Snapshot) models.Signal {
	if s.strategy != nil {
		return s.strategy.Signal(bars)
	}
	if !snap.RSIValid {
		return models.SignalHold
	}
	return strategy.Decide(snap.RSI, s.cfg.BuyThreshold, s.cfg.SellThreshold)
}

func (s *symbolLoop) volatility(bars []models.Bar, snap indicator.Snapshot) (float64, bool) {
	if vs, ok := s.strategy.(volatilitySource); ok {
		return vs.Volatility(bars)
	}
	return snap.ATR, snap.ATRValid
}

func (s *symbolLoop) enter(ctx context.Context, bars []models.Bar, price float64, snap indicator.Snapshot) {
	orders := s.bot.deps.Orders
	fill, ok := orders.SubmitOrder(ctx, models.Buy, s.cfg.Symbol, s.cfg.OrderAmount, snap.RSI)
	if !ok || fill == nil || fill.ExecutedQty <= 0 {
		return
	}

	entry := fill.AvgPrice
	if entry <= 0 {
		entry = price
	}
	openedAt := fill.TransactTime
	if openedAt.IsZero() {
		openedAt = time.Now()
	}
	s.bot.deps.Tracker.Open(s.cfg.Symbol, models.Position{
		Quantity: fill.ExecutedQty,
		Price:    entry,
		OpenedAt: openedAt,
		OrderID:  fill.OrderID,
	})
	s.logger.Info("position opened", zap.Float64("qty", fill.ExecutedQty), zap.Float64("entry", entry))

	if ctx.Err() != nil {
		s.logger.Warn("shutdown before exit bracket, position is unprotected")
		return
	}
	vol, ok := s.volatility(bars, snap)
	if !ok {
		s.logger.Warn("volatility undefined, exit bracket skipped")
		orders.Notify(ctx, fmt.Sprintf("⚠️ %s opened without exit bracket: not enough data for ATR", s.cfg.Symbol))
		return
	}
	orders.PlaceBracket(ctx, s.cfg.Symbol, fill.ExecutedQty, entry, vol)
}

func (s *symbolLoop) exit(ctx context.Context, snap indicator.Snapshot) {
	fill, ok := s.bot.deps.Orders.SubmitOrder(ctx, models.Sell, s.cfg.Symbol, s.cfg.OrderAmount, snap.RSI)
	if !ok || fill == nil {
		return
	}
	s.bot.deps.Tracker.Close(s.cfg.Symbol)
	s.logger.Info("position closed", zap.Float64("qty", fill.ExecutedQty), zap.Float64("price", fill.AvgPrice))
}

// sleepCtx 等待 d，若 ctx 先被取消则返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
