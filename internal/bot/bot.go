package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-signal-bot-go/internal/exchange"
	"binance-signal-bot-go/internal/executor"
	"binance-signal-bot-go/internal/models"
	"binance-signal-bot-go/internal/position"
	"binance-signal-bot-go/internal/strategy"

	"go.uber.org/zap"
)

// Orders 是各交易对循环使用的下单接口
type Orders interface {
	SubmitOrder(ctx context.Context, side models.Side, symbol string, amount, rsi float64) (*models.Fill, bool)
	PlaceBracket(ctx context.Context, symbol string, qty, entryPrice, volatility float64) executor.BracketResult
	Notify(ctx context.Context, text string)
}

// TradeStore 是交易账本的只读部分
type TradeStore interface {
	ExportCSV(ctx context.Context, path string) (int, error)
	LatestBySymbol(ctx context.Context) (map[string]models.TradeRecord, error)
}

// Reporter 在关闭时输出本次运行的汇总
type Reporter interface {
	Report(ctx context.Context) error
}

// Deps 汇总 SignalBot 依赖的组件
type Deps struct {
	Market   exchange.MarketData
	Orders   Orders
	Exchange exchange.OrderPlacer // 仅在启动对账时查询挂单
	Tracker  *position.Tracker
	Ledger   TradeStore
	Reporter Reporter // 可选
}

// SignalBot 为每个配置的交易对运行一个交易循环
type SignalBot struct {
	config   *models.Config
	deps     Deps
	symbols  []*symbolLoop
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	shutdown bool
}

// New 创建机器人，并为每个交易对构建一个策略。
// 策略为空时在循环内直接比较阈值。
func New(cfg *models.Config, deps Deps, logger *zap.Logger) (*SignalBot, error) {
	if deps.Market == nil || deps.Orders == nil || deps.Tracker == nil || deps.Ledger == nil {
		return nil, errors.New("bot: market data, orders, tracker and ledger are required")
	}
	b := &SignalBot{
		config:   cfg,
		deps:     deps,
		logger:   logger,
		interval: cfg.RefreshInterval(),
	}
	for _, sc := range cfg.Symbols {
		strat, err := strategy.New(cfg.Strategy, strategy.Params{
			RSIPeriod:     cfg.RSIPeriod,
			ATRPeriod:     cfg.ATRPeriod,
			BuyThreshold:  sc.BuyThreshold,
			SellThreshold: sc.SellThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("strategy for %s: %w", sc.Symbol, err)
		}
		b.symbols = append(b.symbols, &symbolLoop{
			bot:      b,
			cfg:      sc,
			strategy: strat,
			logger:   logger.With(zap.String("symbol", sc.Symbol)),
		})
	}
	return b, nil
}

// Start 启动所有交易对循环，立即返回
func (b *SignalBot) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.shutdown {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true

	for _, s := range b.symbols {
		b.wg.Add(1)
		go func(s *symbolLoop) {
			defer b.wg.Done()
			s.run(ctx)
		}(s)
	}
	b.logger.Info("signal bot started",
		zap.Int("symbols", len(b.symbols)),
		zap.String("strategy", b.strategyName()),
		zap.Duration("refresh_interval", b.interval))
}

func (b *SignalBot) strategyName() string {
	if b.config.Strategy == "" {
		return strategy.KindInline
	}
	return b.config.Strategy
}

// Shutdown 取消所有循环并等待其退出，然后导出一次账本并输出报告。
// 重复调用不会有任何效果。
func (b *SignalBot) Shutdown() {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return
	}
	b.shutdown = true
	cancel := b.cancel
	b.mu.Unlock()

	b.logger.Info("shutting down signal bot...")
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	ctx := context.Background()
	n, err := b.deps.Ledger.ExportCSV(ctx, b.config.ExportPath)
	if err != nil {
		b.logger.Error("ledger export failed", zap.String("path", b.config.ExportPath), zap.Error(err))
	} else {
		b.logger.Info("ledger exported", zap.String("path", b.config.ExportPath), zap.Int("rows", n))
	}

	if b.deps.Reporter != nil {
		if err := b.deps.Reporter.Report(ctx); err != nil {
			b.logger.Warn("shutdown report failed", zap.Error(err))
		}
	}
	b.logger.Info("signal bot stopped")
}

// Reconcile 恢复账本中最后一笔为 BUY 的持仓，
// 没有 SELL 挂单保护的持仓会通知操作员。只读取状态，从不下单。
func (b *SignalBot) Reconcile(ctx context.Context) error {
	latest, err := b.deps.Ledger.LatestBySymbol(ctx)
	if err != nil {
		return fmt.Errorf("read latest trades: %w", err)
	}

	for _, s := range b.symbols {
		sym := s.cfg.Symbol
		rec, ok := latest[sym]
		if !ok || rec.Side != models.Buy {
			continue
		}

		if !b.deps.Tracker.IsOpen(sym) {
			b.deps.Tracker.Open(sym, models.Position{
				Quantity: rec.Amount,
				Price:    rec.Price,
				OpenedAt: rec.Timestamp,
			})
			b.logger.Info("position restored from ledger",
				zap.String("symbol", sym),
				zap.Float64("qty", rec.Amount),
				zap.Float64("price", rec.Price))
		}

		if b.deps.Exchange == nil {
			continue
		}
		orders, err := b.deps.Exchange.OpenOrders(ctx, sym)
		if err != nil {
			b.logger.Warn("failed to list open orders", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if !hasSell(orders) {
			b.logger.Warn("open position has no protective orders", zap.String("symbol", sym))
			b.deps.Orders.Notify(ctx, fmt.Sprintf("⚠️ %s position from %s has no resting SELL orders",
				sym, rec.Timestamp.Format(time.RFC3339)))
		}
	}
	return nil
}

func hasSell(orders []models.OpenOrder) bool {
	for _, o := range orders {
		if o.Side == models.Sell {
			return true
		}
	}
	return false
}
