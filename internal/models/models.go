package models

import (
	"fmt"
	"time"
)

// Config holds every runtime parameter of the bot.
type Config struct {
	Symbols            []SymbolConfig `mapstructure:"symbols" json:"symbols" validate:"required,min=1,dive"`
	Strategy           string         `mapstructure:"strategy" json:"strategy" validate:"omitempty,oneof=rsi rsi_atr inline"`
	RSIPeriod          int            `mapstructure:"rsi_period" json:"rsi_period" validate:"gte=2"`
	ATRPeriod          int            `mapstructure:"atr_period" json:"atr_period" validate:"gte=1"`
	StopLossMultiplier float64        `mapstructure:"sl_multiplier" json:"sl_multiplier" validate:"gt=0"`
	TakeProfitMult     float64        `mapstructure:"tp_multiplier" json:"tp_multiplier" validate:"gt=0"`
	CandleInterval     string         `mapstructure:"candle_interval" json:"candle_interval" validate:"required"`
	KlineLimit         int            `mapstructure:"kline_limit" json:"kline_limit" validate:"gte=1,lte=1000"`
	RefreshIntervalSec int            `mapstructure:"refresh_interval_sec" json:"refresh_interval_sec" validate:"gte=1"`
	LedgerPath         string         `mapstructure:"ledger_path" json:"ledger_path" validate:"required"`
	ExportPath         string         `mapstructure:"export_path" json:"export_path" validate:"required"`
	TestMode           bool           `mapstructure:"test_mode" json:"test_mode"`
	PositionStorePath  string         `mapstructure:"position_store_path" json:"position_store_path"` // optional badger dir for tracker snapshots
	ReconcileOnStart   bool           `mapstructure:"reconcile_on_start" json:"reconcile_on_start"`
	MetricsAddr        string         `mapstructure:"metrics_addr" json:"metrics_addr"`
	RequestsPerSecond  int            `mapstructure:"requests_per_second" json:"requests_per_second" validate:"gte=1"`
	PaperTrading       bool           `mapstructure:"paper_trading" json:"paper_trading"` // fill orders locally against live prices
	PaperSlippageRate  float64        `mapstructure:"paper_slippage_rate" json:"paper_slippage_rate" validate:"gte=0,lt=1"`

	Binance  BinanceConfig  `mapstructure:"binance" json:"binance"`
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`
	Retry    RetryConfig    `mapstructure:"retry" json:"retry"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// RefreshInterval returns the pause between two cycles of a symbol loop.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// SymbolConfig is the per-pair trading configuration. Immutable after load.
type SymbolConfig struct {
	Symbol        string  `mapstructure:"symbol" json:"symbol" validate:"required,uppercase"`
	BuyThreshold  float64 `mapstructure:"buy_threshold" json:"buy_threshold" validate:"gte=0,lte=100"`
	SellThreshold float64 `mapstructure:"sell_threshold" json:"sell_threshold" validate:"gte=0,lte=100,gtfield=BuyThreshold"`
	OrderAmount   float64 `mapstructure:"order_amount" json:"order_amount" validate:"gt=0"` // quote currency, e.g. USDT
}

// BinanceConfig holds the exchange credentials.
type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key" json:"api_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key" validate:"required"`
}

// TelegramConfig holds the operator channel credentials.
type TelegramConfig struct {
	Token  string `mapstructure:"token" json:"token" validate:"required"`
	ChatID int64  `mapstructure:"chat_id" json:"chat_id" validate:"required"`
}

// RetryConfig bounds the retry of market data fetches.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=1"`
	BaseWaitSec int `mapstructure:"base_wait_sec" json:"base_wait_sec" validate:"gte=1"`
	MaxWaitSec  int `mapstructure:"max_wait_sec" json:"max_wait_sec" validate:"gtefield=BaseWaitSec"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Output     string `mapstructure:"output" json:"output"`           // console, file, both
	File       string `mapstructure:"file" json:"file"`               // log file path
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`       // MB per file
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"` // rotated files kept
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`         // days
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

// Bar is one candlestick. Sequences are ordered oldest first.
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the closing prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Signal is the discrete output of a strategy.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Position is an open, un-exited trade for a symbol.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	OpenedAt time.Time `json:"opened_at"`
	OrderID  int64     `json:"order_id"`
}

// TradeRecord is one row of the trade ledger.
type TradeRecord struct {
	ID        int64     `db:"id"`
	Symbol    string    `db:"symbol"`
	Side      Side      `db:"side"`
	Amount    float64   `db:"amount"` // executed base quantity
	Price     float64   `db:"price"`  // average fill price
	RSI       float64   `db:"rsi"`
	Timestamp time.Time `db:"timestamp"`
}

// Fill describes an executed market order.
type Fill struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	ExecutedQty   float64
	QuoteQty      float64
	AvgPrice      float64
	TransactTime  time.Time
}

// OrderType is the exchange order type used for bracket legs.
type OrderType string

const (
	OrderTypeLimit         OrderType = "LIMIT"
	OrderTypeStopLossLimit OrderType = "STOP_LOSS_LIMIT"
)

// BracketOrderRequest is one protective leg placed after an entry fill.
type BracketOrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64
	StopPrice     float64 // zero for plain limit orders
	TimeInForce   string
	ClientOrderID string
}

// OpenOrder is the subset of a resting exchange order we care about.
type OpenOrder struct {
	OrderID int64
	Symbol  string
	Side    Side
	Type    string
	Price   float64
	Qty     float64
}

// APIError is a permanent rejection returned by the exchange.
type APIError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
