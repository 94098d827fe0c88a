package executor

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOrderPlacer is a mock implementation of the OrderPlacer interface for testing.
type mockOrderPlacer struct {
	sync.Mutex
	marketErr   error
	fill        *models.Fill
	bracketErrs map[models.OrderType]error
	market      []string
	brackets    []models.BracketOrderRequest
}

func (m *mockOrderPlacer) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, quoteAmount float64, clientOrderID string) (*models.Fill, error) {
	m.Lock()
	defer m.Unlock()
	m.market = append(m.market, clientOrderID)
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	f := *m.fill
	f.Symbol, f.Side, f.ClientOrderID = symbol, side, clientOrderID
	return &f, nil
}

func (m *mockOrderPlacer) SubmitBracketOrder(ctx context.Context, req models.BracketOrderRequest) (int64, error) {
	m.Lock()
	defer m.Unlock()
	m.brackets = append(m.brackets, req)
	if err := m.bracketErrs[req.Type]; err != nil {
		return 0, err
	}
	return int64(len(m.brackets)), nil
}

func (m *mockOrderPlacer) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	return nil, nil
}

type mockLedger struct {
	sync.Mutex
	rows []models.TradeRecord
	err  error
}

func (m *mockLedger) Append(ctx context.Context, rec models.TradeRecord) (int64, error) {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.rows = append(m.rows, rec)
	return int64(len(m.rows)), nil
}

type mockNotifier struct {
	sync.Mutex
	msgs []string
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, text string) error {
	m.Lock()
	defer m.Unlock()
	m.msgs = append(m.msgs, text)
	return m.err
}

func newTestExecutor(op *mockOrderPlacer) (*Executor, *mockLedger, *mockNotifier) {
	l := &mockLedger{}
	n := &mockNotifier{}
	return New(op, l, n, 1.5, 2, zap.NewNop()), l, n
}

func TestBracketPrices(t *testing.T) {
	sl, tp := BracketPrices(100, 2, 1.5, 2)
	assert.Equal(t, 97.0, sl)
	assert.Equal(t, 104.0, tp)

	sl, tp = BracketPrices(63123.456, 321.987, 1.5, 2)
	assert.Equal(t, 62640.48, sl)
	assert.Equal(t, 63767.43, tp)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 97.1, Round2(97*1.001))
	assert.Equal(t, 0.01, Round2(0.005))
	assert.Equal(t, -1.24, Round2(-1.236))
}

func TestSubmitOrder_Filled(t *testing.T) {
	op := &mockOrderPlacer{fill: &models.Fill{
		OrderID:      7,
		ExecutedQty:  0.5,
		QuoteQty:     50,
		AvgPrice:     100,
		TransactTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	ex, l, n := newTestExecutor(op)

	fill, ok := ex.SubmitOrder(context.Background(), models.Buy, "BTCUSDT", 50, 28.1)
	require.True(t, ok)
	require.NotNil(t, fill)
	assert.Equal(t, 0.5, fill.ExecutedQty)

	require.Len(t, l.rows, 1, "exactly one ledger row per fill")
	row := l.rows[0]
	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.Equal(t, models.Buy, row.Side)
	assert.Equal(t, 0.5, row.Amount)
	assert.Equal(t, 100.0, row.Price)
	assert.Equal(t, 28.1, row.RSI)
	assert.Equal(t, op.fill.TransactTime, row.Timestamp)

	assert.Len(t, n.msgs, 1)
}

func TestSubmitOrder_RejectionIsContained(t *testing.T) {
	op := &mockOrderPlacer{marketErr: &models.APIError{Code: -2010, Msg: "Account has insufficient balance for requested action."}}
	ex, l, n := newTestExecutor(op)

	fill, ok := ex.SubmitOrder(context.Background(), models.Buy, "BTCUSDT", 50, 25)
	assert.False(t, ok)
	assert.Nil(t, fill)
	assert.Empty(t, l.rows, "no ledger row on rejection")
	require.Len(t, n.msgs, 1, "one notification on rejection")
	assert.Contains(t, n.msgs[0], "insufficient balance")
}

func TestSubmitOrder_NotifierFailureIsNotFatal(t *testing.T) {
	op := &mockOrderPlacer{fill: &models.Fill{ExecutedQty: 1, AvgPrice: 10}}
	ex, l, n := newTestExecutor(op)
	n.err = errors.New("telegram down")

	_, ok := ex.SubmitOrder(context.Background(), models.Sell, "ETHUSDT", 10, 75)
	assert.True(t, ok)
	assert.Len(t, l.rows, 1)
}

func TestSubmitOrder_CancelledBeforeFill(t *testing.T) {
	op := &mockOrderPlacer{marketErr: context.Canceled}
	ex, l, n := newTestExecutor(op)

	_, ok := ex.SubmitOrder(context.Background(), models.Buy, "BTCUSDT", 50, 25)
	assert.False(t, ok)
	assert.Empty(t, l.rows)
	assert.Empty(t, n.msgs)
}

func TestSubmitOrder_ClientOrderIDs(t *testing.T) {
	op := &mockOrderPlacer{fill: &models.Fill{ExecutedQty: 1, AvgPrice: 1}}
	ex, _, _ := newTestExecutor(op)

	ex.SubmitOrder(context.Background(), models.Buy, "BTCUSDT", 1, 1)
	ex.SubmitOrder(context.Background(), models.Buy, "BTCUSDT", 1, 1)

	require.Len(t, op.market, 2)
	assert.NotEqual(t, op.market[0], op.market[1])
	valid := regexp.MustCompile(`^[.A-Z:/a-z0-9_-]{1,36}$`)
	for _, id := range op.market {
		assert.Regexp(t, valid, id)
	}
}

func TestPlaceBracket(t *testing.T) {
	op := &mockOrderPlacer{}
	ex, _, n := newTestExecutor(op)

	res := ex.PlaceBracket(context.Background(), "BTCUSDT", 0.5, 100, 2)
	require.True(t, res.OK())
	assert.Equal(t, 97.0, res.StopLoss)
	assert.Equal(t, 104.0, res.TakeProfit)
	assert.Equal(t, 97.1, res.StopTrigger)

	require.Len(t, op.brackets, 2)
	sl, tp := op.brackets[0], op.brackets[1]
	assert.Equal(t, models.OrderTypeStopLossLimit, sl.Type)
	assert.Equal(t, models.Sell, sl.Side)
	assert.Equal(t, 97.0, sl.Price)
	assert.Equal(t, 97.1, sl.StopPrice)
	assert.Equal(t, "GTC", sl.TimeInForce)
	assert.Equal(t, 0.5, sl.Quantity)

	assert.Equal(t, models.OrderTypeLimit, tp.Type)
	assert.Equal(t, 104.0, tp.Price)
	assert.Zero(t, tp.StopPrice)
	assert.Equal(t, "GTC", tp.TimeInForce)

	assert.Len(t, n.msgs, 1)
}

func TestPlaceBracket_LegFailureDoesNotRollBack(t *testing.T) {
	op := &mockOrderPlacer{bracketErrs: map[models.OrderType]error{
		models.OrderTypeStopLossLimit: &models.APIError{Code: -1013, Msg: "Filter failure: PRICE_FILTER"},
	}}
	ex, _, n := newTestExecutor(op)

	res := ex.PlaceBracket(context.Background(), "BTCUSDT", 0.5, 100, 2)
	assert.False(t, res.OK())
	assert.Error(t, res.StopLossErr)
	assert.NoError(t, res.TakeProfitErr)
	assert.Len(t, op.brackets, 2, "take-profit still submitted")
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "stop-loss")
}
