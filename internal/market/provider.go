// Package market produces the per-run snapshot of price and indicator values
// a bot evaluates against its strategy. Snapshots are ephemeral: built fresh
// for each run, never persisted.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"botcontrol/internal/models"
	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

const (
	rsiPeriod        = 14
	adxPeriod        = 14
	momentumLookback = 10
	klineInterval    = "15"
	klineLimit       = 100
	cacheFreshness   = 5 * time.Second
)

// ErrPriceUnavailable marks a snapshot whose price came back zero or
// non-finite. The run must abort rather than size an order against it.
var ErrPriceUnavailable = errors.New("market price unavailable")

// Snapshot is the engine's view of a symbol at one instant.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange"`
	Price      float64   `json:"price"`
	RSI        float64   `json:"rsi"`
	ADX        float64   `json:"adx"`
	Momentum   float64   `json:"momentum"`
	CapturedAt time.Time `json:"captured_at"`
}

// Source is the slice of the exchange adapter the provider needs.
type Source interface {
	TickerPrice(ctx context.Context, symbol, mode string) (float64, error)
	Klines(ctx context.Context, symbol, mode, interval string, limit int) ([]exchange.Kline, error)
}

// Provider builds snapshots from an exchange source, preferring the websocket
// price cache when it holds a fresh tick.
type Provider struct {
	registry *exchange.Registry
	clock    *clock.Sync
	cache    *PriceCache
}

func NewProvider(registry *exchange.Registry, clk *clock.Sync, cache *PriceCache) *Provider {
	return &Provider{registry: registry, clock: clk, cache: cache}
}

// Snapshot fetches price and indicators for one symbol. Public market-data
// endpoints need no credentials, so the adapter is built with an empty pair.
func (p *Provider) Snapshot(ctx context.Context, symbol, exchangeName, mode string) (*Snapshot, error) {
	adapter, err := p.registry.Adapter(exchangeName, exchange.Credentials{}, p.clock)
	if err != nil {
		return nil, err
	}
	return p.snapshotFrom(ctx, adapter, symbol, exchangeName, mode)
}

func (p *Provider) snapshotFrom(ctx context.Context, src Source, symbol, exchangeName, mode string) (*Snapshot, error) {
	price, ok := p.cachedPrice(exchangeName, symbol)
	if !ok {
		var err error
		price, err = src.TickerPrice(ctx, symbol, mode)
		if err != nil {
			return nil, fmt.Errorf("fetch price for %s: %w", symbol, err)
		}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: %s on %s returned %v", ErrPriceUnavailable, symbol, exchangeName, price)
	}

	klines, err := src.Klines(ctx, symbol, mode, klineInterval, klineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	return &Snapshot{
		Symbol:     symbol,
		Exchange:   exchangeName,
		Price:      price,
		RSI:        rsi(klines, rsiPeriod),
		ADX:        adx(klines, adxPeriod),
		Momentum:   momentum(klines, momentumLookback),
		CapturedAt: p.clock.Now(),
	}, nil
}

func (p *Provider) cachedPrice(exchangeName, symbol string) (float64, bool) {
	if p.cache == nil {
		return 0, false
	}
	price, at, ok := p.cache.Price(exchangeName, symbol)
	if !ok || time.Since(at) > cacheFreshness {
		return 0, false
	}
	return price, true
}

// ValidateMode rejects unknown trading modes before any network call.
func ValidateMode(mode string) error {
	if mode != models.ModeSpot && mode != models.ModeFutures {
		return fmt.Errorf("unknown trading mode %q", mode)
	}
	return nil
}
