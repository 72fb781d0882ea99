package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	balances  map[string]BalanceInfo
	positions []Position
	placed    []OrderRequest
	stops     []TradingStopRequest
	stopErr   error
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeAdapter) TickerPrice(ctx context.Context, symbol, mode string) (float64, error) {
	return 50000, nil
}

func (f *fakeAdapter) Klines(ctx context.Context, symbol, mode, interval string, limit int) ([]Kline, error) {
	return nil, nil
}

func (f *fakeAdapter) WalletBalance(ctx context.Context, coin, mode string) (*BalanceInfo, error) {
	bal, ok := f.balances[coin]
	if !ok {
		return &BalanceInfo{Coin: coin}, nil
	}
	return &bal, nil
}

func (f *fakeAdapter) OpenPositions(ctx context.Context, symbol, mode string) ([]Position, error) {
	return f.positions, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	f.placed = append(f.placed, req)
	return &OrderResult{OrderID: "oid-1", OrderLinkID: req.OrderLinkID, Status: "New"}, nil
}

func (f *fakeAdapter) SetTradingStop(ctx context.Context, req TradingStopRequest) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops = append(f.stops, req)
	return nil
}

func TestCheckBalanceAppliesBuffer(t *testing.T) {
	adapter := &fakeAdapter{balances: map[string]BalanceInfo{
		"USDT": {Coin: "USDT", Available: 1000, Total: 1000},
	}}
	client := NewOrderClient(adapter)

	// 1000 available covers a 950 order only if 950*1.05 <= 1000, which fails.
	check, err := client.CheckBalance(context.Background(), "BTCUSDT", "Buy", 950, 0.019, ModeSpot)
	require.NoError(t, err)
	assert.False(t, check.Sufficient)
	assert.Equal(t, "USDT", check.Coin)
	assert.InDelta(t, 997.5, check.Required, 1e-9)

	check, err = client.CheckBalance(context.Background(), "BTCUSDT", "Buy", 900, 0.018, ModeSpot)
	require.NoError(t, err)
	assert.True(t, check.Sufficient)
}

func TestCheckBalanceSpotSellUsesBaseAsset(t *testing.T) {
	adapter := &fakeAdapter{balances: map[string]BalanceInfo{
		"BTC":  {Coin: "BTC", Available: 0.5},
		"USDT": {Coin: "USDT", Available: 0},
	}}
	client := NewOrderClient(adapter)

	// A spot sell needs the base quantity itself, not buffered quote value.
	check, err := client.CheckBalance(context.Background(), "BTCUSDT", "Sell", 25000, 0.5, ModeSpot)
	require.NoError(t, err)
	assert.True(t, check.Sufficient)
	assert.Equal(t, "BTC", check.Coin)
	assert.Equal(t, 0.5, check.Required)

	// A futures sell margins in quote currency regardless of side.
	check, err = client.CheckBalance(context.Background(), "BTCUSDT", "Sell", 25000, 0.5, ModeFutures)
	require.NoError(t, err)
	assert.Equal(t, "USDT", check.Coin)
	assert.False(t, check.Sufficient)
}

func TestAttachProtectiveOrdersLong(t *testing.T) {
	adapter := &fakeAdapter{positions: []Position{
		{Symbol: "BTCUSDT", Side: "Buy", Size: 0.02, EntryPrice: 50000},
	}}
	client := NewOrderClient(adapter)

	err := client.AttachProtectiveOrders(context.Background(), "BTCUSDT", "Buy", ModeFutures, 2, 4)
	require.NoError(t, err)
	require.Len(t, adapter.stops, 1)

	stop := adapter.stops[0]
	assert.Equal(t, "Sell", stop.CloseSide)
	assert.InDelta(t, 49000, stop.StopLoss, 1e-6)
	assert.InDelta(t, 52000, stop.TakeProfit, 1e-6)
}

func TestAttachProtectiveOrdersShort(t *testing.T) {
	adapter := &fakeAdapter{positions: []Position{
		{Symbol: "ETHUSDT", Side: "Sell", Size: 1, EntryPrice: 3000},
	}}
	client := NewOrderClient(adapter)

	err := client.AttachProtectiveOrders(context.Background(), "ETHUSDT", "Sell", ModeFutures, 2, 4)
	require.NoError(t, err)
	require.Len(t, adapter.stops, 1)

	stop := adapter.stops[0]
	assert.Equal(t, "Buy", stop.CloseSide)
	// For a short the stop sits above entry and the target below.
	assert.InDelta(t, 3060, stop.StopLoss, 1e-6)
	assert.InDelta(t, 2880, stop.TakeProfit, 1e-6)
}

func TestAttachProtectiveOrdersDefaults(t *testing.T) {
	adapter := &fakeAdapter{positions: []Position{
		{Symbol: "BTCUSDT", Side: "Buy", Size: 0.02, EntryPrice: 50000},
	}}
	client := NewOrderClient(adapter)

	// Zero percentages fall back to 2% / 4%.
	err := client.AttachProtectiveOrders(context.Background(), "BTCUSDT", "Buy", ModeFutures, 0, 0)
	require.NoError(t, err)
	require.Len(t, adapter.stops, 1)
	assert.InDelta(t, 49000, adapter.stops[0].StopLoss, 1e-6)
	assert.InDelta(t, 52000, adapter.stops[0].TakeProfit, 1e-6)
}

func TestAttachProtectiveOrdersSkipsSpot(t *testing.T) {
	adapter := &fakeAdapter{}
	client := NewOrderClient(adapter)
	err := client.AttachProtectiveOrders(context.Background(), "BTCUSDT", "Buy", ModeSpot, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, adapter.stops)
}

func TestAttachProtectiveOrdersNoPosition(t *testing.T) {
	adapter := &fakeAdapter{}
	client := NewOrderClient(adapter)
	err := client.AttachProtectiveOrders(context.Background(), "BTCUSDT", "Buy", ModeFutures, 2, 4)
	assert.Error(t, err)
}

func TestCoinHelpers(t *testing.T) {
	assert.Equal(t, "USDT", QuoteCoin("BTCUSDT"))
	assert.Equal(t, "BTC", BaseCoin("BTCUSDT"))
	assert.Equal(t, "USDC", QuoteCoin("ETHUSDC"))
	assert.Equal(t, "ETH", BaseCoin("ETHUSDC"))
}
