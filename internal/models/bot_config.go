package models

import (
	"fmt"
	"strings"
	"time"
)

// Bot lifecycle statuses
const (
	BotStatusRunning = "running"
	BotStatusPaused  = "paused"
	BotStatusStopped = "stopped"
)

// Trading modes
const (
	ModeSpot    = "spot"
	ModeFutures = "futures"
)

// Risk tiers
const (
	RiskTierConservative = "conservative"
	RiskTierNormal       = "normal"
	RiskTierAggressive   = "aggressive"
)

// BotConfig represents a record in bot_configs table. One row per user-owned
// trading bot: which symbol to trade on which exchange, the strategy thresholds,
// and the risk limits the safety gate enforces before every run.
type BotConfig struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	UserID   uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	Name     string `gorm:"column:name;size:64;not null" json:"name"`
	Exchange string `gorm:"column:exchange;size:20;not null" json:"exchange"`
	Symbol   string `gorm:"column:symbol;size:20;not null" json:"symbol"`
	Mode     string `gorm:"column:mode;size:10;not null;default:spot" json:"mode"`
	Status   string `gorm:"column:status;size:10;not null;default:stopped;index" json:"status"`

	// Strategy thresholds. Stored as typed columns; malformed values are
	// rejected by Validate at the persistence boundary.
	RsiBuyThreshold  float64 `gorm:"column:rsi_buy_threshold;default:30" json:"rsi_buy_threshold"`
	RsiSellThreshold float64 `gorm:"column:rsi_sell_threshold;default:70" json:"rsi_sell_threshold"`
	AdxThreshold     float64 `gorm:"column:adx_threshold;default:25" json:"adx_threshold"`

	// Risk parameters
	TradeAmountUSD float64 `gorm:"column:trade_amount_usd;default:100" json:"trade_amount_usd"`
	Leverage       float64 `gorm:"column:leverage;default:1" json:"leverage"`
	RiskTier       string  `gorm:"column:risk_tier;size:12;default:normal" json:"risk_tier"`

	// Dynamic sizing (optional). When enabled the static trade amount is
	// replaced with a volatility-scaled USD amount clamped to [min,max].
	DynamicSizing     bool    `gorm:"column:dynamic_sizing;default:false" json:"dynamic_sizing"`
	DynamicSizeMinUSD float64 `gorm:"column:dynamic_size_min_usd;default:50" json:"dynamic_size_min_usd"`
	DynamicSizeMaxUSD float64 `gorm:"column:dynamic_size_max_usd;default:500" json:"dynamic_size_max_usd"`

	// Safety overrides. Zero disables the corresponding rule.
	MaxConsecutiveLosses   int     `gorm:"column:max_consecutive_losses;default:3" json:"max_consecutive_losses"`
	DailyLossLimitUSD      float64 `gorm:"column:daily_loss_limit_usd;default:0" json:"daily_loss_limit_usd"`
	WeeklyLossLimitUSD     float64 `gorm:"column:weekly_loss_limit_usd;default:0" json:"weekly_loss_limit_usd"`
	DailyLossGuardPct      float64 `gorm:"column:daily_loss_guard_pct;default:0" json:"daily_loss_guard_pct"`
	MaxTradesPerDay        int     `gorm:"column:max_trades_per_day;default:0" json:"max_trades_per_day"`
	MaxConcurrentPositions int     `gorm:"column:max_concurrent_positions;default:0" json:"max_concurrent_positions"`

	// Protective exit offsets, percent from entry. Zero falls back to the
	// engine defaults.
	StopLossPct   float64 `gorm:"column:stop_loss_pct;default:0" json:"stop_loss_pct"`
	TakeProfitPct float64 `gorm:"column:take_profit_pct;default:0" json:"take_profit_pct"`

	// Aggregate performance counters, updated by the engine after each fill.
	TotalTrades  int     `gorm:"column:total_trades;default:0" json:"total_trades"`
	WinningTrade int     `gorm:"column:winning_trades;default:0" json:"winning_trades"`
	WinRate      float64 `gorm:"column:win_rate;default:0" json:"win_rate"`
	TotalPnl     float64 `gorm:"column:total_pnl;default:0" json:"total_pnl"`

	PausedReason string    `gorm:"column:paused_reason;size:255;default:''" json:"paused_reason"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BotConfig) TableName() string {
	return "bot_configs"
}

// Validate rejects malformed configs at the persistence boundary so the engine
// never has to reconstruct parameters at run time.
func (b *BotConfig) Validate() error {
	var errs []string

	if b.UserID == 0 {
		errs = append(errs, "user_id is required")
	}
	if b.Symbol == "" {
		errs = append(errs, "symbol is required")
	}
	if b.Exchange == "" {
		errs = append(errs, "exchange is required")
	}
	if b.Mode != ModeSpot && b.Mode != ModeFutures {
		errs = append(errs, fmt.Sprintf("mode must be %q or %q", ModeSpot, ModeFutures))
	}
	if b.Status != "" && b.Status != BotStatusRunning && b.Status != BotStatusPaused && b.Status != BotStatusStopped {
		errs = append(errs, "status must be running, paused or stopped")
	}
	if b.RsiBuyThreshold < 0 || b.RsiBuyThreshold > 100 ||
		b.RsiSellThreshold < 0 || b.RsiSellThreshold > 100 {
		errs = append(errs, "rsi thresholds must be within [0,100]")
	}
	if b.RsiBuyThreshold >= b.RsiSellThreshold && b.RsiSellThreshold > 0 {
		errs = append(errs, "rsi_buy_threshold must be below rsi_sell_threshold")
	}
	if b.TradeAmountUSD <= 0 {
		errs = append(errs, "trade_amount_usd must be positive")
	}
	if b.Leverage < 1 || b.Leverage > 100 {
		errs = append(errs, "leverage must be within [1,100]")
	}
	if b.Mode == ModeSpot && b.Leverage != 1 {
		errs = append(errs, "spot bots cannot use leverage")
	}
	if b.DynamicSizing && b.DynamicSizeMinUSD > b.DynamicSizeMaxUSD {
		errs = append(errs, "dynamic_size_min_usd must not exceed dynamic_size_max_usd")
	}
	if b.StopLossPct < 0 || b.TakeProfitPct < 0 {
		errs = append(errs, "protective offsets cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid bot config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RiskMultiplier maps the risk tier to the sizing multiplier.
func (b *BotConfig) RiskMultiplier() float64 {
	switch b.RiskTier {
	case RiskTierConservative:
		return 0.5
	case RiskTierAggressive:
		return 1.5
	default:
		return 1.0
	}
}
