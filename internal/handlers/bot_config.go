package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"botcontrol/internal/middleware"
	"botcontrol/internal/models"
	dbconfig "botcontrol/pkg/config"
)

// BotConfigRequest represents the request body for creating/updating a bot config
type BotConfigRequest struct {
	Name     string `json:"name" binding:"required"`
	Exchange string `json:"exchange" binding:"required"`
	Symbol   string `json:"symbol" binding:"required"`
	Mode     string `json:"mode" binding:"required"`

	RsiBuyThreshold  *float64 `json:"rsi_buy_threshold"`
	RsiSellThreshold *float64 `json:"rsi_sell_threshold"`
	AdxThreshold     *float64 `json:"adx_threshold"`

	TradeAmountUSD float64 `json:"trade_amount_usd" binding:"required"`
	Leverage       float64 `json:"leverage"`
	RiskTier       string  `json:"risk_tier"`

	DynamicSizing     *bool   `json:"dynamic_sizing"`
	DynamicSizeMinUSD float64 `json:"dynamic_size_min_usd"`
	DynamicSizeMaxUSD float64 `json:"dynamic_size_max_usd"`

	MaxConsecutiveLosses   *int    `json:"max_consecutive_losses"`
	DailyLossLimitUSD      float64 `json:"daily_loss_limit_usd"`
	WeeklyLossLimitUSD     float64 `json:"weekly_loss_limit_usd"`
	DailyLossGuardPct      float64 `json:"daily_loss_guard_pct"`
	MaxTradesPerDay        int     `json:"max_trades_per_day"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`

	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
}

func (r *BotConfigRequest) apply(bot *models.BotConfig) {
	bot.Name = r.Name
	bot.Exchange = r.Exchange
	bot.Symbol = r.Symbol
	bot.Mode = r.Mode
	if r.RsiBuyThreshold != nil {
		bot.RsiBuyThreshold = *r.RsiBuyThreshold
	}
	if r.RsiSellThreshold != nil {
		bot.RsiSellThreshold = *r.RsiSellThreshold
	}
	if r.AdxThreshold != nil {
		bot.AdxThreshold = *r.AdxThreshold
	}
	bot.TradeAmountUSD = r.TradeAmountUSD
	if r.Leverage > 0 {
		bot.Leverage = r.Leverage
	}
	if r.RiskTier != "" {
		bot.RiskTier = r.RiskTier
	}
	if r.DynamicSizing != nil {
		bot.DynamicSizing = *r.DynamicSizing
	}
	if r.DynamicSizeMinUSD > 0 {
		bot.DynamicSizeMinUSD = r.DynamicSizeMinUSD
	}
	if r.DynamicSizeMaxUSD > 0 {
		bot.DynamicSizeMaxUSD = r.DynamicSizeMaxUSD
	}
	if r.MaxConsecutiveLosses != nil {
		bot.MaxConsecutiveLosses = *r.MaxConsecutiveLosses
	}
	bot.DailyLossLimitUSD = r.DailyLossLimitUSD
	bot.WeeklyLossLimitUSD = r.WeeklyLossLimitUSD
	bot.DailyLossGuardPct = r.DailyLossGuardPct
	bot.MaxTradesPerDay = r.MaxTradesPerDay
	bot.MaxConcurrentPositions = r.MaxConcurrentPositions
	bot.StopLossPct = r.StopLossPct
	bot.TakeProfitPct = r.TakeProfitPct
}

// ListBotConfigs returns all bot configs owned by the caller
func ListBotConfigs(c *gin.Context) {
	var bots []models.BotConfig
	if err := dbconfig.DB.Where("user_id = ?", middleware.CurrentUserID(c)).
		Order("id ASC").Find(&bots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bots)
}

// GetBotConfig returns a specific bot config by ID
func GetBotConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var bot models.BotConfig
	if err := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		First(&bot).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// CreateBotConfig creates a new bot config
func CreateBotConfig(c *gin.Context) {
	var request BotConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bot := models.BotConfig{
		UserID:               middleware.CurrentUserID(c),
		Status:               models.BotStatusStopped,
		RsiBuyThreshold:      30,
		RsiSellThreshold:     70,
		AdxThreshold:         25,
		Leverage:             1,
		RiskTier:             models.RiskTierNormal,
		MaxConsecutiveLosses: 3,
	}
	request.apply(&bot)

	if err := bot.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := dbconfig.DB.Create(&bot).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, bot)
}

// UpdateBotConfig updates an existing bot config
func UpdateBotConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var bot models.BotConfig
	if err := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		First(&bot).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	var request BotConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request.apply(&bot)

	if err := bot.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := dbconfig.DB.Save(&bot).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// DeleteBotConfig deletes a bot config
func DeleteBotConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	result := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		Delete(&models.BotConfig{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bot config deleted successfully"})
}

// setBotStatus performs a user-initiated status transition.
func setBotStatus(c *gin.Context, status, pausedReason string) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	updates := map[string]interface{}{
		"status":        status,
		"paused_reason": pausedReason,
	}
	result := dbconfig.DB.Model(&models.BotConfig{}).
		Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// StartBotConfig transitions the bot to running. Clears any paused reason.
func StartBotConfig(c *gin.Context) {
	setBotStatus(c, models.BotStatusRunning, "")
}

// PauseBotConfig transitions the bot to paused
func PauseBotConfig(c *gin.Context) {
	setBotStatus(c, models.BotStatusPaused, "paused by user")
}

// StopBotConfig transitions the bot to stopped
func StopBotConfig(c *gin.Context) {
	setBotStatus(c, models.BotStatusStopped, "")
}
