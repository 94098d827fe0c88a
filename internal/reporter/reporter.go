package reporter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"binance-signal-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"
)

// TradeSource lists every recorded trade in insertion order.
type TradeSource interface {
	All(ctx context.Context) ([]models.TradeRecord, error)
}

// SymbolMetrics 存储单个交易对根据账本计算出的指标
type SymbolMetrics struct {
	Symbol         string
	Buys           int
	Sells          int
	BuyQty         float64
	SellQty        float64
	BuyNotional    float64
	SellNotional   float64
	RoundTrips     int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64 // percent of round trips with positive PnL
	RealizedPNL    float64
	MaxDrawdown    float64 // of cumulative realized PnL, in quote currency
	LastPrice      float64
	OpenAtEnd      bool
	OpenQty        float64
	OpenEntryPrice float64
}

// Reporter 在关闭时根据交易账本生成会话报告
type Reporter struct {
	source TradeSource
	logger *zap.Logger
}

func New(source TradeSource, logger *zap.Logger) *Reporter {
	return &Reporter{source: source, logger: logger}
}

// Report computes the per-symbol summary and logs it as a table.
func (r *Reporter) Report(ctx context.Context) error {
	trades, err := r.source.All(ctx)
	if err != nil {
		return fmt.Errorf("load trades for report: %w", err)
	}
	metrics := Calculate(trades)
	r.logger.Info("session report\n" + Render(metrics))
	return nil
}

// Calculate groups trades by symbol. A SELL closes the preceding BUY of the
// same symbol and realises (sell - buy) * min(qty).
func Calculate(trades []models.TradeRecord) []SymbolMetrics {
	bySymbol := make(map[string]*SymbolMetrics)
	type entry struct{ qty, price float64 }
	open := make(map[string]*entry)
	curves := make(map[string][]float64)

	for _, t := range trades {
		m, ok := bySymbol[t.Symbol]
		if !ok {
			m = &SymbolMetrics{Symbol: t.Symbol}
			bySymbol[t.Symbol] = m
		}
		m.LastPrice = t.Price

		switch t.Side {
		case models.Buy:
			m.Buys++
			m.BuyQty += t.Amount
			m.BuyNotional += t.Amount * t.Price
			open[t.Symbol] = &entry{qty: t.Amount, price: t.Price}
		case models.Sell:
			m.Sells++
			m.SellQty += t.Amount
			m.SellNotional += t.Amount * t.Price
			if e := open[t.Symbol]; e != nil {
				pnl := (t.Price - e.price) * math.Min(e.qty, t.Amount)
				m.RoundTrips++
				if pnl > 0 {
					m.WinningTrades++
				} else if pnl < 0 {
					m.LosingTrades++
				}
				m.RealizedPNL += pnl
				curves[t.Symbol] = append(curves[t.Symbol], m.RealizedPNL)
				delete(open, t.Symbol)
			}
		}
	}

	out := make([]SymbolMetrics, 0, len(bySymbol))
	for sym, m := range bySymbol {
		if m.RoundTrips > 0 {
			m.WinRate = float64(m.WinningTrades) / float64(m.RoundTrips) * 100
		}
		m.MaxDrawdown = calculateMaxDrawdown(curves[sym])
		if e := open[sym]; e != nil {
			m.OpenAtEnd = true
			m.OpenQty = e.qty
			m.OpenEntryPrice = e.price
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// calculateMaxDrawdown 计算累计已实现盈亏曲线从峰值的最大回撤（从0起算）
func calculateMaxDrawdown(curve []float64) float64 {
	peak, maxDD := 0.0, 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Render formats metrics as a text table.
func Render(metrics []SymbolMetrics) string {
	t := table.NewWriter()
	t.SetTitle("Session Report")
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "Buys", "Sells", "Buy Qty", "Sell Qty", "Round Trips", "Win Rate", "Realized PnL", "Max DD", "Last Price", "Open"})

	var totalPNL float64
	var totalBuys, totalSells, totalTrips int
	for _, m := range metrics {
		openCol := "-"
		if m.OpenAtEnd {
			openCol = fmt.Sprintf("%.8g @ %.2f", m.OpenQty, m.OpenEntryPrice)
		}
		t.AppendRow(table.Row{
			m.Symbol,
			m.Buys,
			m.Sells,
			fmt.Sprintf("%.8g", m.BuyQty),
			fmt.Sprintf("%.8g", m.SellQty),
			m.RoundTrips,
			fmt.Sprintf("%.2f%%", m.WinRate),
			fmt.Sprintf("%.2f", m.RealizedPNL),
			fmt.Sprintf("%.2f", m.MaxDrawdown),
			fmt.Sprintf("%.2f", m.LastPrice),
			openCol,
		})
		totalPNL += m.RealizedPNL
		totalBuys += m.Buys
		totalSells += m.Sells
		totalTrips += m.RoundTrips
	}
	t.AppendFooter(table.Row{"Total", totalBuys, totalSells, "", "", totalTrips, "", fmt.Sprintf("%.2f", totalPNL), "", "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	return t.Render()
}
