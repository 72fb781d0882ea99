package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"botcontrol/internal/middleware"
	"botcontrol/internal/models"
	dbconfig "botcontrol/pkg/config"
)

// ListTradeRecords returns the caller's trades with pagination, optionally
// filtered by bot, symbol and status
func ListTradeRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := dbconfig.DB.Model(&models.TradeRecord{}).
		Where("user_id = ?", middleware.CurrentUserID(c))
	if botID := c.Query("bot_id"); botID != "" {
		query = query.Where("bot_id = ?", botID)
	}
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var trades []models.TradeRecord
	if err := query.Order("executed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&trades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"data":      trades,
	})
}

// GetTradeRecord returns one trade by ID
func GetTradeRecord(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var trade models.TradeRecord
	if err := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		First(&trade).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, trade)
}

// CloseTradeRequest marks an open trade closed with its realized pnl
type CloseTradeRequest struct {
	Pnl float64 `json:"pnl"`
	Fee float64 `json:"fee"`
}

// CloseTradeRecord transitions an open trade to closed and records pnl. The
// aggregate counters on the owning bot are recomputed afterwards.
func CloseTradeRecord(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request CloseTradeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var trade models.TradeRecord
	if err := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		First(&trade).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	if trade.Status != models.TradeStatusOpen {
		c.JSON(http.StatusConflict, gin.H{"error": "trade is not open"})
		return
	}

	updates := map[string]interface{}{
		"status": models.TradeStatusClosed,
		"pnl":    request.Pnl,
		"fee":    request.Fee,
	}
	if err := dbconfig.DB.Model(&trade).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := engineStore.BumpTradeCounters(c.Request.Context(), trade.BotID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.TradeStatusClosed, "pnl": request.Pnl})
}
