// Package sizing computes and normalizes order quantities. The contract is
// strict: output is always a step multiple within the symbol's [min,max], and
// a quantity that cannot satisfy the minimum fails loudly instead of being
// rounded up past the user's risk intent.
package sizing

import (
	"fmt"
	"math"

	"botcontrol/internal/models"
	"botcontrol/pkg/exchange"
)

// Trading-mode floors for the USD base amount. Futures carry a higher floor
// because leveraged dust positions get liquidated by fees alone.
const (
	spotFloorUSD      = 10.0
	futuresFloorUSD   = 20.0
	baselineVolPct    = 2.0 // reference volatility for dynamic sizing
	minVolatilityPct  = 0.1
)

// Input carries everything one sizing pass needs.
type Input struct {
	Bot           *models.BotConfig
	Price         float64
	VolatilityPct float64 // recent price volatility, only read in dynamic mode
}

// Result is the normalized quantity plus the intermediate values for the
// audit trail.
type Result struct {
	Quantity    float64
	RawQuantity float64
	BaseUSD     float64
	OrderValue  float64
	Constraints exchange.Constraints
}

// Size computes the normalized order quantity for one placement.
func Size(in Input) (*Result, error) {
	bot := in.Bot
	if in.Price <= 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return nil, fmt.Errorf("cannot size order against invalid price %v", in.Price)
	}

	base := bot.TradeAmountUSD
	if bot.DynamicSizing {
		base = dynamicBase(bot, in.VolatilityPct)
	}

	floor := spotFloorUSD
	if bot.Mode == models.ModeFutures {
		floor = futuresFloorUSD
	}
	if base < floor {
		base = floor
	}

	raw := base * bot.Leverage * bot.RiskMultiplier() / in.Price

	cons := exchange.LookupConstraints(bot.Symbol)
	clamped := raw
	if clamped > cons.MaxQty {
		clamped = cons.MaxQty
	}
	qty := exchange.FloorToStep(clamped, cons.QtyStep)

	// A quantity under the exchange minimum is a hard failure: rounding up
	// would exceed what the user asked to risk.
	if qty < cons.MinQty-1e-9 {
		return nil, fmt.Errorf("normalized quantity %.8f for %s is below the exchange minimum %.8f (raw %.8f, step %.8f)",
			qty, bot.Symbol, cons.MinQty, raw, cons.QtyStep)
	}

	return &Result{
		Quantity:    qty,
		RawQuantity: raw,
		BaseUSD:     base,
		OrderValue:  qty * in.Price,
		Constraints: cons,
	}, nil
}

// dynamicBase scales the configured base amount inversely with recent
// volatility and clamps it to the configured USD band: calm markets size up,
// turbulent markets size down.
func dynamicBase(bot *models.BotConfig, volPct float64) float64 {
	if volPct < minVolatilityPct {
		volPct = minVolatilityPct
	}
	base := bot.TradeAmountUSD * (baselineVolPct / volPct)

	min, max := bot.DynamicSizeMinUSD, bot.DynamicSizeMaxUSD
	if min <= 0 {
		min = spotFloorUSD
	}
	if max <= 0 {
		max = bot.TradeAmountUSD * 5
	}
	if base < min {
		base = min
	}
	if base > max {
		base = max
	}
	return base
}
