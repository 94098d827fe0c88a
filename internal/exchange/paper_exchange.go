package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"binance-signal-bot-go/internal/models"

	"go.uber.org/zap"
)

// Binance error codes reproduced by the paper exchange.
const (
	codeInsufficientBalance int64 = -2010
	codeBadParameter        int64 = -1102
	codeUnknownSymbol       int64 = -1121
)

// paperOrder 是纸面交易中的一张挂单。
type paperOrder struct {
	models.OpenOrder
	StopPrice float64
	Status    string // NEW, FILLED, EXPIRED
	triggered bool
}

// PaperExchange 实现了 OrderPlacer 接口，在本地模拟成交，行情价格来自真实K线。
// 市价单按最新收盘价加滑点成交；止损限价单和限价单在每根新K线按 O->L->H->C 的路径撮合。
type PaperExchange struct {
	mu           sync.Mutex
	slippageRate float64
	nextOrderID  int64
	lastPrice    map[string]float64
	lastBar      map[string]time.Time
	holdings     map[string]float64 // base asset balance per symbol
	orders       map[int64]*paperOrder
	fills        []models.Fill
	logger       *zap.Logger
	now          func() time.Time
}

// NewPaperExchange 创建一个新的 PaperExchange 实例。
func NewPaperExchange(slippageRate float64, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		slippageRate: slippageRate,
		nextOrderID:  1,
		lastPrice:    make(map[string]float64),
		lastBar:      make(map[string]time.Time),
		holdings:     make(map[string]float64),
		orders:       make(map[int64]*paperOrder),
		logger:       logger,
		now:          time.Now,
	}
}

// Track 包装一个行情源，使每次获取到的最新K线都驱动纸面撮合。
func (e *PaperExchange) Track(md MarketData) MarketData {
	return &paperFeed{next: md, paper: e}
}

type paperFeed struct {
	next  MarketData
	paper *PaperExchange
}

func (f *paperFeed) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	bars, err := f.next.FetchBars(ctx, symbol, interval, limit)
	if err == nil && len(bars) > 0 {
		f.paper.Observe(symbol, bars[len(bars)-1])
	}
	return bars, err
}

// Observe 模拟一根K线内的价格路径并撮合挂单。同一根K线重复出现时只更新最新价。
func (e *PaperExchange) Observe(symbol string, bar models.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seen, ok := e.lastBar[symbol]; !ok || bar.OpenTime.After(seen) {
		e.lastBar[symbol] = bar.OpenTime
		e.matchAt(symbol, bar.Open)
		e.matchAt(symbol, bar.Low)
		e.matchAt(symbol, bar.High)
	}
	e.matchAt(symbol, bar.Close)
	e.lastPrice[symbol] = bar.Close
}

// matchAt 检查在给定价格点上可以成交的挂单。调用方需持有锁。
func (e *PaperExchange) matchAt(symbol string, price float64) {
	ids := make([]int64, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := e.orders[id]
		if o.Symbol != symbol || o.Status != "NEW" {
			continue
		}
		switch models.OrderType(o.Type) {
		case models.OrderTypeStopLossLimit:
			if !o.triggered && price <= o.StopPrice {
				o.triggered = true
			}
			if o.triggered && price >= o.Price {
				e.fillResting(o)
			}
		case models.OrderTypeLimit:
			if (o.Side == models.Sell && price >= o.Price) || (o.Side == models.Buy && price <= o.Price) {
				e.fillResting(o)
			}
		}
	}
}

// fillResting 以挂单价成交一张挂单；余额不足时订单过期。调用方需持有锁。
func (e *PaperExchange) fillResting(o *paperOrder) {
	if o.Side == models.Sell && e.holdings[o.Symbol]+1e-12 < o.Qty {
		o.Status = "EXPIRED"
		e.logger.Info("paper order expired, insufficient balance",
			zap.String("symbol", o.Symbol), zap.Int64("order_id", o.OrderID))
		return
	}
	if o.Side == models.Sell {
		e.holdings[o.Symbol] -= o.Qty
	} else {
		e.holdings[o.Symbol] += o.Qty
	}
	o.Status = "FILLED"
	e.fills = append(e.fills, models.Fill{
		OrderID:      o.OrderID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		ExecutedQty:  o.Qty,
		QuoteQty:     o.Qty * o.Price,
		AvgPrice:     o.Price,
		TransactTime: e.now(),
	})
	e.logger.Info("paper order filled",
		zap.String("symbol", o.Symbol),
		zap.String("type", o.Type),
		zap.Float64("price", o.Price),
		zap.Float64("qty", o.Qty))
}

// SubmitMarketOrder 按最新价加滑点立即成交。
func (e *PaperExchange) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, quoteAmount float64, clientOrderID string) (*models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastPrice[symbol]
	if !ok || last <= 0 {
		return nil, &models.APIError{Code: codeUnknownSymbol, Msg: fmt.Sprintf("no market price for %s", symbol)}
	}
	if quoteAmount <= 0 {
		return nil, &models.APIError{Code: codeBadParameter, Msg: "quoteOrderQty must be positive"}
	}

	price := last * (1 + e.slippageRate)
	if side == models.Sell {
		price = last * (1 - e.slippageRate)
	}
	qty := quoteAmount / price

	switch side {
	case models.Buy:
		e.holdings[symbol] += qty
	case models.Sell:
		if e.holdings[symbol]+1e-12 < qty {
			return nil, &models.APIError{Code: codeInsufficientBalance, Msg: "Account has insufficient balance for requested action."}
		}
		e.holdings[symbol] -= qty
	default:
		return nil, &models.APIError{Code: codeBadParameter, Msg: fmt.Sprintf("invalid side %q", side)}
	}

	fill := models.Fill{
		OrderID:       e.nextOrderID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   qty,
		QuoteQty:      quoteAmount,
		AvgPrice:      price,
		TransactTime:  e.now(),
	}
	e.nextOrderID++
	e.fills = append(e.fills, fill)
	return &fill, nil
}

// SubmitBracketOrder 挂一张止损限价单或限价单，等待后续K线撮合。
func (e *PaperExchange) SubmitBracketOrder(ctx context.Context, req models.BracketOrderRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.Quantity <= 0 || req.Price <= 0 {
		return 0, &models.APIError{Code: codeBadParameter, Msg: "quantity and price must be positive"}
	}
	if req.Type == models.OrderTypeStopLossLimit && req.StopPrice <= 0 {
		return 0, &models.APIError{Code: codeBadParameter, Msg: "stopPrice is mandatory for STOP_LOSS_LIMIT"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextOrderID
	e.nextOrderID++
	e.orders[id] = &paperOrder{
		OpenOrder: models.OpenOrder{
			OrderID: id,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Type:    string(req.Type),
			Price:   req.Price,
			Qty:     req.Quantity,
		},
		StopPrice: req.StopPrice,
		Status:    "NEW",
	}
	return id, nil
}

// OpenOrders 返回指定交易对仍在挂单中的订单。
func (e *PaperExchange) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.OpenOrder
	for _, o := range e.orders {
		if o.Symbol == symbol && o.Status == "NEW" {
			out = append(out, o.OpenOrder)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// Holding 返回某交易对的模拟基础资产余额。
func (e *PaperExchange) Holding(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holdings[symbol]
}

// Fills 返回所有模拟成交记录的副本。
func (e *PaperExchange) Fills() []models.Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Fill, len(e.fills))
	copy(out, e.fills)
	return out
}
