package exchange

import (
	"math"
	"strings"
)

// Constraints are the per-symbol order limits the sizer normalizes against.
type Constraints struct {
	MinQty  float64
	MaxQty  float64
	QtyStep float64
	Tick    float64
}

// Static reference table for the majors. Unknown symbols fall back to
// DefaultConstraints; known low-unit-value assets get the conservative tier so
// a bad lookup can never produce a dust order the exchange rejects.
var symbolConstraints = map[string]Constraints{
	"BTCUSDT":  {MinQty: 0.001, MaxQty: 100, QtyStep: 0.001, Tick: 0.1},
	"ETHUSDT":  {MinQty: 0.01, MaxQty: 1000, QtyStep: 0.01, Tick: 0.01},
	"BNBUSDT":  {MinQty: 0.01, MaxQty: 5000, QtyStep: 0.01, Tick: 0.01},
	"SOLUSDT":  {MinQty: 0.1, MaxQty: 50000, QtyStep: 0.1, Tick: 0.001},
	"XRPUSDT":  {MinQty: 1, MaxQty: 1000000, QtyStep: 1, Tick: 0.0001},
	"ADAUSDT":  {MinQty: 1, MaxQty: 1000000, QtyStep: 1, Tick: 0.0001},
	"DOGEUSDT": {MinQty: 1, MaxQty: 5000000, QtyStep: 1, Tick: 0.00001},
	"DOTUSDT":  {MinQty: 0.1, MaxQty: 100000, QtyStep: 0.1, Tick: 0.001},
	"LTCUSDT":  {MinQty: 0.01, MaxQty: 10000, QtyStep: 0.01, Tick: 0.01},
	"AVAXUSDT": {MinQty: 0.1, MaxQty: 100000, QtyStep: 0.1, Tick: 0.001},
	"LINKUSDT": {MinQty: 0.1, MaxQty: 100000, QtyStep: 0.1, Tick: 0.001},
	"MATICUSDT": {MinQty: 1, MaxQty: 1000000, QtyStep: 1, Tick: 0.0001},
}

// DefaultConstraints applies to symbols missing from the table.
var DefaultConstraints = Constraints{MinQty: 0.01, MaxQty: 100000, QtyStep: 0.01, Tick: 0.01}

// conservativeConstraints is the fallback tier for low-unit-value assets whose
// natural quantities are large integers.
var conservativeConstraints = Constraints{MinQty: 1, MaxQty: 1000000, QtyStep: 1, Tick: 0.00001}

// lowUnitValuePrefixes marks assets that trade far below one USD.
var lowUnitValuePrefixes = []string{"SHIB", "PEPE", "FLOKI", "BONK", "1000"}

// LookupConstraints resolves the constraints for a symbol.
func LookupConstraints(symbol string) Constraints {
	sym := strings.ToUpper(symbol)
	if c, ok := symbolConstraints[sym]; ok {
		return c
	}
	for _, prefix := range lowUnitValuePrefixes {
		if strings.HasPrefix(sym, prefix) {
			return conservativeConstraints
		}
	}
	return DefaultConstraints
}

// FloorToStep floors a quantity to the nearest step multiple. Flooring, never
// rounding up: the result must not exceed the user's risk intent.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := math.Floor(qty/step + 1e-9)
	return steps * step
}

// RoundToTick rounds a price to the nearest tick for limit-style payloads.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
