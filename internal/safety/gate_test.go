package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botcontrol/internal/models"
)

type fakeStore struct {
	killSwitch    bool
	emergencyStop bool
	closedTrades  []models.TradeRecord
	dailyPnl      float64
	weeklyPnl     float64
	tradeCount    int64
	openPositions int64
	failOn        string
}

func (f *fakeStore) SystemKillSwitch(ctx context.Context) (bool, error) {
	if f.failOn == "kill_switch" {
		return false, errors.New("db down")
	}
	return f.killSwitch, nil
}

func (f *fakeStore) UserEmergencyStop(ctx context.Context, userID uint) (bool, error) {
	return f.emergencyStop, nil
}

func (f *fakeStore) RecentClosedTrades(ctx context.Context, botID uint, limit int) ([]models.TradeRecord, error) {
	if f.failOn == "trades" {
		return nil, errors.New("db down")
	}
	if limit < len(f.closedTrades) {
		return f.closedTrades[:limit], nil
	}
	return f.closedTrades, nil
}

func (f *fakeStore) RealizedPnlSince(ctx context.Context, botID uint, since time.Time) (float64, error) {
	// The weekly window starts six days before the daily one.
	if time.Since(since) > 24*time.Hour {
		return f.weeklyPnl, nil
	}
	return f.dailyPnl, nil
}

func (f *fakeStore) TradeCountSince(ctx context.Context, botID uint, since time.Time) (int64, error) {
	return f.tradeCount, nil
}

func (f *fakeStore) OpenPositionCount(ctx context.Context, botID uint) (int64, error) {
	return f.openPositions, nil
}

func losses(n int) []models.TradeRecord {
	trades := make([]models.TradeRecord, n)
	for i := range trades {
		trades[i] = models.TradeRecord{Pnl: -10, Status: models.TradeStatusClosed}
	}
	return trades
}

func runningBot() *models.BotConfig {
	return &models.BotConfig{
		ID:                   1,
		UserID:               7,
		Status:               models.BotStatusRunning,
		MaxConsecutiveLosses: 3,
	}
}

func TestGateAllowsHealthyBot(t *testing.T) {
	gate := NewGate(&fakeStore{})
	verdict := gate.Evaluate(context.Background(), runningBot())
	assert.True(t, verdict.CanTrade)
	assert.False(t, verdict.ShouldPause)
}

func TestGateRuleOrder(t *testing.T) {
	// Every rule trips at once; the kill switch must win because it is
	// evaluated first.
	store := &fakeStore{
		killSwitch:    true,
		emergencyStop: true,
		closedTrades:  losses(5),
		dailyPnl:      -1000,
		weeklyPnl:     -5000,
		tradeCount:    100,
		openPositions: 50,
	}
	bot := runningBot()
	bot.Status = models.BotStatusPaused
	bot.DailyLossLimitUSD = 100
	bot.WeeklyLossLimitUSD = 500
	bot.MaxTradesPerDay = 10
	bot.MaxConcurrentPositions = 3

	verdict := NewGate(store).Evaluate(context.Background(), bot)
	assert.False(t, verdict.CanTrade)
	assert.Equal(t, RuleKillSwitch, verdict.Rule)
	assert.True(t, verdict.ShouldPause)

	// With the kill switches cleared the status rule is next.
	store.killSwitch = false
	store.emergencyStop = false
	verdict = NewGate(store).Evaluate(context.Background(), bot)
	assert.Equal(t, RuleBotStatus, verdict.Rule)
	assert.False(t, verdict.ShouldPause)

	// A running bot then falls to the consecutive-loss rule.
	bot.Status = models.BotStatusRunning
	verdict = NewGate(store).Evaluate(context.Background(), bot)
	assert.Equal(t, RuleConsecutiveLosses, verdict.Rule)
	assert.True(t, verdict.ShouldPause)
}

func TestGateConsecutiveLosses(t *testing.T) {
	bot := runningBot()

	t.Run("streak below limit passes", func(t *testing.T) {
		store := &fakeStore{closedTrades: losses(2)}
		verdict := NewGate(store).Evaluate(context.Background(), bot)
		assert.True(t, verdict.CanTrade)
	})

	t.Run("streak at limit blocks and pauses", func(t *testing.T) {
		store := &fakeStore{closedTrades: losses(3)}
		verdict := NewGate(store).Evaluate(context.Background(), bot)
		assert.False(t, verdict.CanTrade)
		assert.Equal(t, RuleConsecutiveLosses, verdict.Rule)
		assert.True(t, verdict.ShouldPause)
	})

	t.Run("a win resets the streak", func(t *testing.T) {
		trades := losses(2)
		trades = append(trades, models.TradeRecord{Pnl: 25, Status: models.TradeStatusClosed})
		trades = append(trades, losses(4)...)
		store := &fakeStore{closedTrades: trades}
		verdict := NewGate(store).Evaluate(context.Background(), bot)
		assert.True(t, verdict.CanTrade)
	})

	t.Run("zero limit disables the rule", func(t *testing.T) {
		disabled := runningBot()
		disabled.MaxConsecutiveLosses = 0
		store := &fakeStore{closedTrades: losses(20)}
		verdict := NewGate(store).Evaluate(context.Background(), disabled)
		assert.True(t, verdict.CanTrade)
	})
}

func TestGateDailyLossLimit(t *testing.T) {
	bot := runningBot()
	bot.DailyLossLimitUSD = 100

	store := &fakeStore{dailyPnl: -99.99}
	verdict := NewGate(store).Evaluate(context.Background(), bot)
	assert.True(t, verdict.CanTrade)

	store.dailyPnl = -100
	verdict = NewGate(store).Evaluate(context.Background(), bot)
	assert.False(t, verdict.CanTrade)
	assert.Equal(t, RuleDailyLoss, verdict.Rule)
	assert.True(t, verdict.ShouldPause)
}

func TestGateDailyLossGuard(t *testing.T) {
	bot := runningBot()
	bot.DailyLossGuardPct = 5

	t.Run("uses fallback baseline without equity lookup", func(t *testing.T) {
		// 5% of the 10000 fallback is 500.
		store := &fakeStore{dailyPnl: -500}
		verdict := NewGate(store).Evaluate(context.Background(), bot)
		require.False(t, verdict.CanTrade)
		assert.Equal(t, RuleDailyLossGuard, verdict.Rule)
		// Guard blocks for the rest of the day but never pauses.
		assert.False(t, verdict.ShouldPause)
	})

	t.Run("live equity overrides the baseline", func(t *testing.T) {
		store := &fakeStore{dailyPnl: -500}
		gate := NewGate(store).WithEquityLookup(func(ctx context.Context) (float64, error) {
			return 100000, nil
		})
		// 500 of 100000 is 0.5%, under the 5% guard.
		verdict := gate.Evaluate(context.Background(), bot)
		assert.True(t, verdict.CanTrade)
	})

	t.Run("equity lookup failure falls back", func(t *testing.T) {
		store := &fakeStore{dailyPnl: -500}
		gate := NewGate(store).WithEquityLookup(func(ctx context.Context) (float64, error) {
			return 0, errors.New("exchange down")
		})
		verdict := gate.Evaluate(context.Background(), bot)
		assert.False(t, verdict.CanTrade)
		assert.Equal(t, RuleDailyLossGuard, verdict.Rule)
	})

	t.Run("profitable day never trips the guard", func(t *testing.T) {
		store := &fakeStore{dailyPnl: 500}
		verdict := NewGate(store).Evaluate(context.Background(), bot)
		assert.True(t, verdict.CanTrade)
	})
}

func TestGateWeeklyLossLimit(t *testing.T) {
	bot := runningBot()
	bot.WeeklyLossLimitUSD = 300

	store := &fakeStore{weeklyPnl: -300}
	verdict := NewGate(store).Evaluate(context.Background(), bot)
	assert.False(t, verdict.CanTrade)
	assert.Equal(t, RuleWeeklyLoss, verdict.Rule)
	assert.True(t, verdict.ShouldPause)
}

func TestGateTradeCountAndPositions(t *testing.T) {
	bot := runningBot()
	bot.MaxTradesPerDay = 10
	bot.MaxConcurrentPositions = 3

	store := &fakeStore{tradeCount: 10}
	verdict := NewGate(store).Evaluate(context.Background(), bot)
	assert.Equal(t, RuleTradeCount, verdict.Rule)
	assert.False(t, verdict.ShouldPause)

	store = &fakeStore{openPositions: 3}
	verdict = NewGate(store).Evaluate(context.Background(), bot)
	assert.Equal(t, RuleOpenPositions, verdict.Rule)
	assert.False(t, verdict.ShouldPause)
}

func TestGateFailsClosed(t *testing.T) {
	t.Run("kill switch query failure blocks", func(t *testing.T) {
		store := &fakeStore{failOn: "kill_switch"}
		verdict := NewGate(store).Evaluate(context.Background(), runningBot())
		assert.False(t, verdict.CanTrade)
		assert.Equal(t, RuleKillSwitch, verdict.Rule)
		assert.False(t, verdict.ShouldPause)
	})

	t.Run("trade history failure blocks", func(t *testing.T) {
		store := &fakeStore{failOn: "trades"}
		verdict := NewGate(store).Evaluate(context.Background(), runningBot())
		assert.False(t, verdict.CanTrade)
		assert.Equal(t, RuleConsecutiveLosses, verdict.Rule)
	})
}

func TestGateVerdictIsDeterministic(t *testing.T) {
	store := &fakeStore{closedTrades: losses(3)}
	gate := NewGate(store)
	first := gate.Evaluate(context.Background(), runningBot())
	second := gate.Evaluate(context.Background(), runningBot())
	assert.Equal(t, first, second)
}
