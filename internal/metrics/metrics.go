package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_orders_total",
			Help: "Orders sent to the exchange by symbol, side and result.",
		},
		[]string{"symbol", "side", "result"},
	)

	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_signals_total",
			Help: "Signals produced per symbol.",
		},
		[]string{"symbol", "signal"},
	)

	CycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_cycle_errors_total",
			Help: "Trading cycles abandoned because of an error.",
		},
		[]string{"symbol"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalbot_positions_open",
			Help: "Symbols that currently hold an open position.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, SignalsTotal, CycleErrors, PositionsOpen)
}

// Handler 在 /metrics 下暴露默认注册表
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve 在 addr 上提供 Handler，直到 ctx 结束
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics endpoint stopped", zap.Error(err))
	}
}
