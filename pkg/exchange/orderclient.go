package exchange

import (
	"context"
	"fmt"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// balanceBuffer is the safety margin over the raw order value that must be
// available before placement, absorbing fees and slippage.
const balanceBuffer = 1.05

// Default protective offsets, percent from entry, used when the bot config
// does not override them.
const (
	DefaultStopLossPct   = 2.0
	DefaultTakeProfitPct = 4.0
)

// BalanceCheck is the outcome of a pre-placement balance verification.
type BalanceCheck struct {
	Sufficient bool
	Available  float64
	Required   float64
	Coin       string
}

// OrderClient wraps an Adapter with the exchange-agnostic placement protocol:
// balance verification before every order, and protective stop-loss/take-profit
// attachment after futures fills.
type OrderClient struct {
	adapter Adapter
}

func NewOrderClient(a Adapter) *OrderClient {
	return &OrderClient{adapter: a}
}

// CheckBalance verifies the account can cover orderValue plus the safety
// buffer. For spot sells the relevant balance is the base asset quantity, for
// everything else the quote currency.
func (c *OrderClient) CheckBalance(ctx context.Context, symbol, side string, orderValue, qty float64, mode string) (*BalanceCheck, error) {
	coin := QuoteCoin(symbol)
	required := orderValue * balanceBuffer
	if mode == ModeSpot && side == "Sell" {
		coin = BaseCoin(symbol)
		required = qty
	}

	bal, err := c.adapter.WalletBalance(ctx, coin, mode)
	if err != nil {
		return nil, fmt.Errorf("balance check for %s: %w", coin, err)
	}

	return &BalanceCheck{
		Sufficient: bal.Available >= required,
		Available:  bal.Available,
		Required:   required,
		Coin:       coin,
	}, nil
}

// PlaceOrder submits the order through the adapter.
func (c *OrderClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return c.adapter.PlaceOrder(ctx, req)
}

// AttachProtectiveOrders fetches the realized entry price of the just-filled
// futures position and submits a stop-loss/take-profit pair at the given
// percentage offsets. Every failure here is non-fatal relative to the filled
// primary order: the method logs and returns the error for the caller's audit
// trail, but the caller must not treat it as a run failure.
func (c *OrderClient) AttachProtectiveOrders(ctx context.Context, symbol, side, mode string, slPct, tpPct float64) error {
	if mode != ModeFutures {
		return nil
	}
	if slPct <= 0 {
		slPct = DefaultStopLossPct
	}
	if tpPct <= 0 {
		tpPct = DefaultTakeProfitPct
	}

	positions, err := c.adapter.OpenPositions(ctx, symbol, mode)
	if err != nil {
		return fmt.Errorf("fetch entry price: %w", err)
	}
	var entry float64
	for _, p := range positions {
		if p.Symbol == symbol && p.Size > 0 {
			entry = p.EntryPrice
			break
		}
	}
	if entry <= 0 {
		return fmt.Errorf("no open position found for %s, skipping protective orders", symbol)
	}

	var stop, target float64
	if side == "Buy" {
		stop = entry * (1 - slPct/100)
		target = entry * (1 + tpPct/100)
	} else {
		stop = entry * (1 + slPct/100)
		target = entry * (1 - tpPct/100)
	}

	// Directional sanity: a long must stop below entry and target above it,
	// inverted for a short. Submitting an inverted pair would trigger instantly.
	if side == "Buy" && !(stop < entry && target > entry) {
		return fmt.Errorf("protective order validation failed for long: stop %.8f target %.8f entry %.8f", stop, target, entry)
	}
	if side == "Sell" && !(stop > entry && target < entry) {
		return fmt.Errorf("protective order validation failed for short: stop %.8f target %.8f entry %.8f", stop, target, entry)
	}

	closeSide := "Sell"
	if side == "Sell" {
		closeSide = "Buy"
	}
	cons := LookupConstraints(symbol)
	req := TradingStopRequest{
		Symbol:     symbol,
		Mode:       mode,
		CloseSide:  closeSide,
		StopLoss:   RoundToTick(stop, cons.Tick),
		TakeProfit: RoundToTick(target, cons.Tick),
	}
	if err := c.adapter.SetTradingStop(ctx, req); err != nil {
		return fmt.Errorf("set trading stop: %w", err)
	}

	logger.WithFields(logger.Fields{
		"symbol":      symbol,
		"entry":       entry,
		"stop_loss":   req.StopLoss,
		"take_profit": req.TakeProfit,
	}).Info("protective orders attached")
	return nil
}

// BaseAssetBalance reports how much of the symbol's base asset the account
// owns, used by the spot-sell ownership check.
func (c *OrderClient) BaseAssetBalance(ctx context.Context, symbol string) (float64, error) {
	bal, err := c.adapter.WalletBalance(ctx, BaseCoin(symbol), ModeSpot)
	if err != nil {
		return 0, err
	}
	return bal.Available, nil
}

// QuoteCoin extracts the quote currency from a symbol like BTCUSDT.
func QuoteCoin(symbol string) string {
	sym := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(sym, quote) {
			return quote
		}
	}
	return "USDT"
}

// BaseCoin extracts the base asset from a symbol like BTCUSDT.
func BaseCoin(symbol string) string {
	sym := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(sym, quote) && len(sym) > len(quote) {
			return strings.TrimSuffix(sym, quote)
		}
	}
	return sym
}
