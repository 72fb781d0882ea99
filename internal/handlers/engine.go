package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"botcontrol/internal/engine"
	"botcontrol/internal/market"
	"botcontrol/internal/middleware"
	"botcontrol/internal/models"
	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

// Engine wiring shared by the handlers in this package, set once at startup.
var (
	engineStore     *engine.Store
	engineExecutor  *engine.Executor
	engineScheduler *engine.Scheduler
	marketProvider  *market.Provider
	engineClock     *clock.Sync
	engineRegistry  *exchange.Registry
)

// InitEngine wires the execution components into the handler package.
func InitEngine(store *engine.Store, exec *engine.Executor, sched *engine.Scheduler, provider *market.Provider, clk *clock.Sync, registry *exchange.Registry) {
	engineStore = store
	engineExecutor = exec
	engineScheduler = sched
	marketProvider = provider
	engineClock = clk
	engineRegistry = registry
}

// ExecuteBot runs one execution pass for the caller's bot
func ExecuteBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	bot, err := engineStore.BotByID(c.Request.Context(), uint(id), middleware.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	result, execErr := engineExecutor.Execute(c.Request.Context(), bot)
	status := http.StatusOK
	if execErr != nil {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"result": result})
}

// ExecuteAllBots runs one batch pass over every running bot. Scheduler-only.
func ExecuteAllBots(c *gin.Context) {
	summary, err := engineScheduler.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RunLoopRequest bounds a synchronous multi-batch run
type RunLoopRequest struct {
	IntervalSeconds int `json:"interval_seconds" binding:"required,min=1"`
	Ticks           int `json:"ticks" binding:"required,min=1,max=60"`
}

// RunLoop runs a bounded number of batches at a fixed interval. Scheduler-only.
func RunLoop(c *gin.Context) {
	var request RunLoopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summaries, err := engineScheduler.RunLoop(c.Request.Context(),
		time.Duration(request.IntervalSeconds)*time.Second, request.Ticks)
	if err != nil && len(summaries) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": summaries})
}

// GetMarketData returns the current snapshot for a symbol
func GetMarketData(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	exchangeName := c.DefaultQuery("exchange", "bybit")
	mode := c.DefaultQuery("mode", models.ModeSpot)
	if err := market.ValidateMode(mode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := marketProvider.Snapshot(c.Request.Context(), symbol, exchangeName, mode)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetServerTime reports the synchronized time and clock diagnostics
func GetServerTime(c *gin.Context) {
	state := engineClock.State()
	c.JSON(http.StatusOK, gin.H{
		"clock":     state,
		"exchanges": engineRegistry.Supported(),
	})
}
