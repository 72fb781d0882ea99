// Package exchange defines the adapter boundary between the bot engine and
// concrete exchanges. Every adapter speaks signed REST: each request carries a
// timestamp, a receive window and an HMAC signature over the canonical request
// representation. Adapters are registered once per exchange identifier and
// selected through the Registry, never by string comparison at call sites.
package exchange

import (
	"context"
	"fmt"
	"time"
)

// Trading modes, mirrored from the bot config.
const (
	ModeSpot    = "spot"
	ModeFutures = "futures"
)

// Category classifies an exchange (or engine) failure for handling purposes.
type Category string

const (
	// CategoryTransient resolves on its own: insufficient balance, temporary
	// price unavailability, timestamp drift. Retry on the next tick.
	CategoryTransient Category = "transient"
	// CategoryRestricted means the exchange denies trading for compliance
	// reasons; the symbol is skipped but the bot keeps monitoring.
	CategoryRestricted Category = "restricted"
	// CategoryConfig covers invalid symbols, quantities below the exchange
	// minimum and malformed parameters.
	CategoryConfig Category = "config"
	// CategorySafety marks a safety-gate escalation.
	CategorySafety Category = "safety"
	// CategoryFatal covers signing failures and unavailable infrastructure.
	CategoryFatal Category = "fatal"
)

// APIError is an exchange error mapped onto the engine taxonomy. The raw code
// and message are preserved for the audit trail.
type APIError struct {
	Exchange string
	Code     int
	Message  string
	Category Category
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error %d (%s): %s", e.Exchange, e.Code, e.Category, e.Message)
}

// Credentials carries a decrypted API key pair for the duration of one signing
// call. Never log either field.
type Credentials struct {
	APIKey    string
	APISecret string
}

// OrderRequest describes one placement attempt. Quantity and price arrive
// already normalized to the symbol's constraints. A request is never reused
// across attempts: the adapter stamps timestamp and signature fresh on send.
type OrderRequest struct {
	Symbol      string
	Side        string // Buy | Sell
	Qty         float64
	Price       float64 // 0 for market orders
	Mode        string  // spot | futures
	OrderLinkID string
}

// OrderResult is the exchange acknowledgement of a placed order.
type OrderResult struct {
	OrderID     string
	OrderLinkID string
	Status      string
	Raw         string
}

// TradingStopRequest attaches a protective stop-loss/take-profit pair to an
// open futures position.
type TradingStopRequest struct {
	Symbol     string
	Mode       string
	CloseSide  string // side that closes the position: Sell for a long, Buy for a short
	StopLoss   float64
	TakeProfit float64
}

// BalanceInfo reports the wallet balance of a single coin.
type BalanceInfo struct {
	Coin      string
	Available float64
	Total     float64
}

// Position is one open position on the exchange.
type Position struct {
	Symbol     string
	Side       string
	Size       float64
	EntryPrice float64
}

// Kline is one OHLCV candle used for indicator computation.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Adapter is the per-exchange capability the engine depends on.
type Adapter interface {
	Name() string
	ServerTime(ctx context.Context) (time.Time, error)
	TickerPrice(ctx context.Context, symbol, mode string) (float64, error)
	Klines(ctx context.Context, symbol, mode, interval string, limit int) ([]Kline, error)
	WalletBalance(ctx context.Context, coin, mode string) (*BalanceInfo, error)
	OpenPositions(ctx context.Context, symbol, mode string) ([]Position, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	SetTradingStop(ctx context.Context, req TradingStopRequest) error
}
