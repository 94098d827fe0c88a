package exchange

import (
	"context"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retry of a market data fetch.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy is 5 attempts waiting between 1s and 30s.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseWait: time.Second, MaxWait: 30 * time.Second}

// RetryingMarketData retries transient fetch failures with exponential backoff.
// Exchange rejections and context cancellation are returned immediately.
type RetryingMarketData struct {
	next   MarketData
	policy RetryPolicy
	logger *zap.Logger
}

func NewRetryingMarketData(next MarketData, policy RetryPolicy, logger *zap.Logger) *RetryingMarketData {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingMarketData{next: next, policy: policy, logger: logger}
}

func (r *RetryingMarketData) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.BaseWait
	exp.MaxInterval = r.policy.MaxWait
	exp.Multiplier = 2
	exp.RandomizationFactor = 0 // 等待时间严格落在 [BaseWait, MaxWait] 内
	exp.MaxElapsedTime = 0      // 只按次数限制
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.MaxAttempts-1)), ctx)
}

// FetchBars implements MarketData.
func (r *RetryingMarketData) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	var bars []models.Bar
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		bars, err = r.next.FetchBars(ctx, symbol, interval, limit)
		if err == nil {
			return nil
		}
		if IsRejection(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("fetch bars failed, retrying",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return bars, nil
}
