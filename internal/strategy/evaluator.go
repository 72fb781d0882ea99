// Package strategy turns a market snapshot plus a bot's thresholds into a
// trade decision. Evaluation is pure: no I/O, no clock, no state.
package strategy

import (
	"fmt"

	"botcontrol/internal/market"
	"botcontrol/internal/models"
)

// Decision is the evaluator output, consumed immediately by the executor.
type Decision struct {
	ShouldTrade bool    `json:"should_trade"`
	Side        string  `json:"side,omitempty"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

// confidenceScale maps threshold excess onto [0,1]: an RSI 20 points past its
// threshold, or an ADX 20 points past its minimum, is treated as full
// conviction.
const confidenceScale = 20.0

// Evaluate applies the threshold rules in fixed priority order and returns on
// the first match: RSI extremes before trend strength. Spot-mode sell
// suppression is the executor's job since it needs an exchange lookup.
func Evaluate(bot *models.BotConfig, snap *market.Snapshot) Decision {
	// Rule 1: momentum oscillator oversold.
	if bot.RsiBuyThreshold > 0 && snap.RSI <= bot.RsiBuyThreshold {
		excess := bot.RsiBuyThreshold - snap.RSI
		return Decision{
			ShouldTrade: true,
			Side:        models.SideBuy,
			Reason:      fmt.Sprintf("RSI %.1f at or below oversold threshold %.1f", snap.RSI, bot.RsiBuyThreshold),
			Confidence:  clamp(excess / confidenceScale),
		}
	}

	// Rule 2: momentum oscillator overbought.
	if bot.RsiSellThreshold > 0 && snap.RSI >= bot.RsiSellThreshold {
		excess := snap.RSI - bot.RsiSellThreshold
		return Decision{
			ShouldTrade: true,
			Side:        models.SideSell,
			Reason:      fmt.Sprintf("RSI %.1f at or above overbought threshold %.1f", snap.RSI, bot.RsiSellThreshold),
			Confidence:  clamp(excess / confidenceScale),
		}
	}

	// Rule 3: strong trend confirmed by momentum direction.
	if bot.AdxThreshold > 0 && snap.ADX >= bot.AdxThreshold && snap.Momentum != 0 {
		side := models.SideBuy
		if snap.Momentum < 0 {
			side = models.SideSell
		}
		excess := snap.ADX - bot.AdxThreshold
		return Decision{
			ShouldTrade: true,
			Side:        side,
			Reason:      fmt.Sprintf("ADX %.1f above trend threshold %.1f with %.2f%% momentum", snap.ADX, bot.AdxThreshold, snap.Momentum),
			Confidence:  clamp(excess / confidenceScale),
		}
	}

	return Decision{
		ShouldTrade: false,
		Reason:      fmt.Sprintf("no signal: RSI %.1f within [%.1f, %.1f], ADX %.1f below %.1f", snap.RSI, bot.RsiBuyThreshold, bot.RsiSellThreshold, snap.ADX, bot.AdxThreshold),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
