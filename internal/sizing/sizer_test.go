package sizing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botcontrol/internal/models"
)

func baseBot() *models.BotConfig {
	return &models.BotConfig{
		Symbol:         "BTCUSDT",
		Mode:           models.ModeSpot,
		TradeAmountUSD: 1000,
		Leverage:       1,
		RiskTier:       models.RiskTierNormal,
	}
}

func TestSizeProducesStepMultiple(t *testing.T) {
	res, err := Size(Input{Bot: baseBot(), Price: 63211.37})
	require.NoError(t, err)

	// BTCUSDT steps in 0.001.
	steps := res.Quantity / 0.001
	assert.InDelta(t, math.Round(steps), steps, 1e-6)
	assert.LessOrEqual(t, res.Quantity, res.RawQuantity)
	assert.Greater(t, res.Quantity, 0.0)
}

func TestSizeAppliesLeverageAndRiskTier(t *testing.T) {
	bot := baseBot()
	bot.Mode = models.ModeFutures
	bot.Leverage = 5
	res, err := Size(Input{Bot: bot, Price: 50000})
	require.NoError(t, err)
	assert.InDelta(t, 1000*5/50000.0, res.RawQuantity, 1e-9)

	bot.RiskTier = models.RiskTierConservative
	conservative, err := Size(Input{Bot: bot, Price: 50000})
	require.NoError(t, err)
	assert.InDelta(t, res.RawQuantity/2, conservative.RawQuantity, 1e-9)

	bot.RiskTier = models.RiskTierAggressive
	aggressive, err := Size(Input{Bot: bot, Price: 50000})
	require.NoError(t, err)
	assert.InDelta(t, res.RawQuantity*1.5, aggressive.RawQuantity, 1e-9)
}

func TestSizeModeFloors(t *testing.T) {
	bot := baseBot()
	bot.TradeAmountUSD = 1

	spot, err := Size(Input{Bot: bot, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, 10.0, spot.BaseUSD)

	bot.Mode = models.ModeFutures
	futures, err := Size(Input{Bot: bot, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, 20.0, futures.BaseUSD)
}

func TestSizeRejectsBelowMinimum(t *testing.T) {
	bot := baseBot()
	bot.Symbol = "ETHUSDT"
	bot.TradeAmountUSD = 10

	// 10 USD at an absurd price floors to zero whole steps.
	_, err := Size(Input{Bot: bot, Price: 100000000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the exchange minimum")
}

func TestSizeRejectsInvalidPrice(t *testing.T) {
	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := Size(Input{Bot: baseBot(), Price: price})
		assert.Error(t, err)
	}
}

func TestSizeDynamicScalesWithVolatility(t *testing.T) {
	bot := baseBot()
	bot.DynamicSizing = true
	bot.DynamicSizeMinUSD = 100
	bot.DynamicSizeMaxUSD = 2000

	// At the reference volatility the base is unchanged.
	ref, err := Size(Input{Bot: bot, Price: 50000, VolatilityPct: 2.0})
	require.NoError(t, err)
	assert.InDelta(t, 1000, ref.BaseUSD, 1e-9)

	// Double the volatility halves the base.
	calm, err := Size(Input{Bot: bot, Price: 50000, VolatilityPct: 4.0})
	require.NoError(t, err)
	assert.InDelta(t, 500, calm.BaseUSD, 1e-9)

	// Extreme volatility clamps at the floor of the band.
	floor, err := Size(Input{Bot: bot, Price: 50000, VolatilityPct: 100})
	require.NoError(t, err)
	assert.InDelta(t, 100, floor.BaseUSD, 1e-9)

	// Near-zero volatility clamps at the ceiling.
	ceil, err := Size(Input{Bot: bot, Price: 50000, VolatilityPct: 0.01})
	require.NoError(t, err)
	assert.InDelta(t, 2000, ceil.BaseUSD, 1e-9)
}
