package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LiveOptions configures a LiveExchange.
type LiveOptions struct {
	APIKey            string
	SecretKey         string
	TestMode          bool   // route every call to the Binance spot testnet
	RequestsPerSecond int    // client side pacing, shared by all symbol loops
	BaseURL           string // overrides the endpoint, used by tests
}

// LiveExchange 通过 go-binance 与币安现货交易所交互，同时实现 MarketData 和 OrderPlacer。
type LiveExchange struct {
	client  *binance.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLiveExchange 创建一个新的 LiveExchange 实例，并与服务器同步时间。
func NewLiveExchange(ctx context.Context, opts LiveOptions, logger *zap.Logger) (*LiveExchange, error) {
	binance.UseTestnet = opts.TestMode
	client := binance.NewClient(opts.APIKey, opts.SecretKey)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	e := &LiveExchange{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		logger:  logger,
	}

	if err := e.syncTime(ctx); err != nil {
		return nil, fmt.Errorf("sync time with binance: %w", err)
	}
	logger.Info("binance client ready", zap.Bool("testnet", opts.TestMode), zap.String("base_url", client.BaseURL))
	return e, nil
}

// syncTime 与币安服务器同步时间，签名请求的时间戳会使用该偏移。
func (e *LiveExchange) syncTime(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	offset, err := e.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return translateError(err)
	}
	e.logger.Info("time synchronised with binance", zap.Int64("offset_ms", offset))
	return nil
}

// FetchBars 获取最近 limit 根K线，按时间从旧到新排列。
func (e *LiveExchange) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := e.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(k)
		if err != nil {
			return nil, fmt.Errorf("parse kline %s@%d: %w", symbol, k.OpenTime, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func klineToBar(k *binance.Kline) (models.Bar, error) {
	var (
		bar models.Bar
		err error
	)
	bar.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	fields := []struct {
		raw string
		dst *float64
	}{
		{k.Open, &bar.Open},
		{k.High, &bar.High},
		{k.Low, &bar.Low},
		{k.Close, &bar.Close},
		{k.Volume, &bar.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return models.Bar{}, err
		}
	}
	return bar, nil
}

// SubmitMarketOrder 以计价货币金额下市价单。
func (e *LiveExchange) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, quoteAmount float64, clientOrderID string) (*models.Fill, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	svc := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatFloat(quoteAmount))
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return responseToFill(resp, side)
}

func responseToFill(resp *binance.CreateOrderResponse, side models.Side) (*models.Fill, error) {
	qty, err := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parse executed quantity %q: %w", resp.ExecutedQuantity, err)
	}
	quote, err := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote quantity %q: %w", resp.CummulativeQuoteQuantity, err)
	}

	fill := &models.Fill{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          side,
		ExecutedQty:   qty,
		QuoteQty:      quote,
		TransactTime:  time.UnixMilli(resp.TransactTime).UTC(),
	}

	// 均价优先按成交明细加权，缺失时退化为 成交额/成交量。
	var px, sz float64
	for _, f := range resp.Fills {
		p, perr := strconv.ParseFloat(f.Price, 64)
		q, qerr := strconv.ParseFloat(f.Quantity, 64)
		if perr != nil || qerr != nil {
			continue
		}
		px += p * q
		sz += q
	}
	switch {
	case sz > 0:
		fill.AvgPrice = px / sz
	case qty > 0:
		fill.AvgPrice = quote / qty
	}
	return fill, nil
}

// SubmitBracketOrder 下一个保护性挂单（止损限价单或限价止盈单），返回订单ID。
func (e *LiveExchange) SubmitBracketOrder(ctx context.Context, req models.BracketOrderRequest) (int64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	tif := binance.TimeInForceTypeGTC
	if req.TimeInForce != "" {
		tif = binance.TimeInForceType(req.TimeInForce)
	}
	svc := e.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		TimeInForce(tif).
		Quantity(formatFloat(req.Quantity)).
		Price(formatFloat(req.Price))
	if req.StopPrice > 0 {
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return 0, translateError(err)
	}
	return resp.OrderID, nil
}

// OpenOrders 返回指定交易对当前所有挂单。
func (e *LiveExchange) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	out := make([]models.OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		out = append(out, models.OpenOrder{
			OrderID: o.OrderID,
			Symbol:  o.Symbol,
			Side:    models.Side(o.Side),
			Type:    string(o.Type),
			Price:   price,
			Qty:     qty,
		})
	}
	return out, nil
}

// translateError 将 go-binance 的 APIError 转换为 models.APIError，其余错误原样返回。
func translateError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &models.APIError{Code: apiErr.Code, Msg: apiErr.Message}
	}
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
