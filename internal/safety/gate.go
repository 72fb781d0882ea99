// Package safety implements the pre-trade rule chain. Rules are evaluated in
// a fixed order and the first failing rule wins; later rules are never
// consulted. Any rule whose underlying data fetch fails blocks trading rather
// than silently passing.
package safety

import (
	"context"
	"fmt"
	"time"

	"botcontrol/internal/models"
)

// Rule identifiers, in evaluation order.
const (
	RuleKillSwitch        = "kill_switch"
	RuleBotStatus         = "bot_status"
	RuleConsecutiveLosses = "consecutive_losses"
	RuleDailyLoss         = "daily_loss"
	RuleDailyLossGuard    = "daily_loss_guard"
	RuleWeeklyLoss        = "weekly_loss"
	RuleTradeCount        = "trade_count"
	RuleOpenPositions     = "open_positions"
)

// DefaultBaselineEquity is the account value the daily loss guard falls back
// to when no live equity lookup is available.
const DefaultBaselineEquity = 10000.0

// Verdict is the outcome of one gate evaluation. ShouldPause escalates the
// block into a bot status transition; it is the only path by which the engine
// pauses a bot.
type Verdict struct {
	CanTrade    bool   `json:"can_trade"`
	Rule        string `json:"rule,omitempty"`
	Reason      string `json:"reason"`
	ShouldPause bool   `json:"should_pause"`
}

// Store abstracts the trade-history queries so the gate can be tested without
// a database.
type Store interface {
	SystemKillSwitch(ctx context.Context) (bool, error)
	UserEmergencyStop(ctx context.Context, userID uint) (bool, error)
	// RecentClosedTrades returns closed trades for the bot, newest first.
	RecentClosedTrades(ctx context.Context, botID uint, limit int) ([]models.TradeRecord, error)
	// RealizedPnlSince sums pnl of closed trades executed at or after since.
	RealizedPnlSince(ctx context.Context, botID uint, since time.Time) (float64, error)
	TradeCountSince(ctx context.Context, botID uint, since time.Time) (int64, error)
	OpenPositionCount(ctx context.Context, botID uint) (int64, error)
}

// EquityFunc resolves the account equity used as the daily loss guard
// baseline. Optional; the gate falls back to DefaultBaselineEquity.
type EquityFunc func(ctx context.Context) (float64, error)

type Gate struct {
	store  Store
	equity EquityFunc
	nowUTC func() time.Time
}

func NewGate(store Store) *Gate {
	return &Gate{store: store, nowUTC: func() time.Time { return time.Now().UTC() }}
}

// WithEquityLookup installs a live equity source for the daily loss guard.
func (g *Gate) WithEquityLookup(f EquityFunc) *Gate {
	g.equity = f
	return g
}

// WithNow overrides the clock for tests.
func (g *Gate) WithNow(f func() time.Time) *Gate {
	g.nowUTC = f
	return g
}

func blocked(rule, reason string, pause bool) Verdict {
	return Verdict{CanTrade: false, Rule: rule, Reason: reason, ShouldPause: pause}
}

// failClosed converts a data-fetch error into a blocking verdict. Unverifiable
// safety state must never be treated as safe.
func failClosed(rule string, err error) Verdict {
	return Verdict{
		CanTrade:    false,
		Rule:        rule,
		Reason:      fmt.Sprintf("safety check %s could not be verified: %v", rule, err),
		ShouldPause: false,
	}
}

// Evaluate runs the full chain for one bot. Given unchanged underlying trade
// history the verdict is deterministic: re-running after a block reproduces
// the same rule and reason.
func (g *Gate) Evaluate(ctx context.Context, bot *models.BotConfig) Verdict {
	now := g.nowUTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfWeek := startOfDay.AddDate(0, 0, -6)

	// 1. Kill switches, system then user. Both escalate.
	if on, err := g.store.SystemKillSwitch(ctx); err != nil {
		return failClosed(RuleKillSwitch, err)
	} else if on {
		return blocked(RuleKillSwitch, "system kill switch is active", true)
	}
	if on, err := g.store.UserEmergencyStop(ctx, bot.UserID); err != nil {
		return failClosed(RuleKillSwitch, err)
	} else if on {
		return blocked(RuleKillSwitch, "user emergency stop is active", true)
	}

	// 2. Bot must be running.
	if bot.Status != models.BotStatusRunning {
		return blocked(RuleBotStatus, fmt.Sprintf("bot status is %q, not running", bot.Status), false)
	}

	// 3. Consecutive losses, newest first until the first winning trade.
	if bot.MaxConsecutiveLosses > 0 {
		trades, err := g.store.RecentClosedTrades(ctx, bot.ID, bot.MaxConsecutiveLosses+1)
		if err != nil {
			return failClosed(RuleConsecutiveLosses, err)
		}
		losses := 0
		for _, t := range trades {
			if t.Pnl >= 0 {
				break
			}
			losses++
		}
		if losses >= bot.MaxConsecutiveLosses {
			return blocked(RuleConsecutiveLosses,
				fmt.Sprintf("%d consecutive losing trades reached the limit of %d", losses, bot.MaxConsecutiveLosses), true)
		}
	}

	// 4. Daily realized loss since 00:00 UTC.
	var dailyPnl float64
	dailyPnlLoaded := false
	if bot.DailyLossLimitUSD > 0 || bot.DailyLossGuardPct > 0 {
		var err error
		dailyPnl, err = g.store.RealizedPnlSince(ctx, bot.ID, startOfDay)
		if err != nil {
			return failClosed(RuleDailyLoss, err)
		}
		dailyPnlLoaded = true
	}
	if bot.DailyLossLimitUSD > 0 && -dailyPnl >= bot.DailyLossLimitUSD {
		return blocked(RuleDailyLoss,
			fmt.Sprintf("daily realized loss %.2f USD reached the limit of %.2f USD", -dailyPnl, bot.DailyLossLimitUSD), true)
	}

	// 5. Daily loss guard: blocks for the rest of the UTC day, no pause, so
	// open positions can still be managed.
	if bot.DailyLossGuardPct > 0 && dailyPnlLoaded && dailyPnl < 0 {
		baseline := DefaultBaselineEquity
		if g.equity != nil {
			if eq, err := g.equity(ctx); err == nil && eq > 0 {
				baseline = eq
			}
		}
		lossPct := -dailyPnl / baseline * 100
		if lossPct >= bot.DailyLossGuardPct {
			return blocked(RuleDailyLossGuard,
				fmt.Sprintf("daily loss guard tripped: down %.2f%% of account value (limit %.2f%%), trading blocked until next UTC day", lossPct, bot.DailyLossGuardPct), false)
		}
	}

	// 6. Weekly realized loss over the trailing 7 UTC days.
	if bot.WeeklyLossLimitUSD > 0 {
		weeklyPnl, err := g.store.RealizedPnlSince(ctx, bot.ID, startOfWeek)
		if err != nil {
			return failClosed(RuleWeeklyLoss, err)
		}
		if -weeklyPnl >= bot.WeeklyLossLimitUSD {
			return blocked(RuleWeeklyLoss,
				fmt.Sprintf("weekly realized loss %.2f USD reached the limit of %.2f USD", -weeklyPnl, bot.WeeklyLossLimitUSD), true)
		}
	}

	// 7. Trade count today. Resets at the next UTC day, no pause.
	if bot.MaxTradesPerDay > 0 {
		count, err := g.store.TradeCountSince(ctx, bot.ID, startOfDay)
		if err != nil {
			return failClosed(RuleTradeCount, err)
		}
		if count >= int64(bot.MaxTradesPerDay) {
			return blocked(RuleTradeCount,
				fmt.Sprintf("daily trade count %d reached the limit of %d", count, bot.MaxTradesPerDay), false)
		}
	}

	// 8. Open position count.
	if bot.MaxConcurrentPositions > 0 {
		open, err := g.store.OpenPositionCount(ctx, bot.ID)
		if err != nil {
			return failClosed(RuleOpenPositions, err)
		}
		if open >= int64(bot.MaxConcurrentPositions) {
			return blocked(RuleOpenPositions,
				fmt.Sprintf("%d open positions reached the limit of %d", open, bot.MaxConcurrentPositions), false)
		}
	}

	return Verdict{CanTrade: true, Reason: "all safety checks passed"}
}
