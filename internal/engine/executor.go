// Package engine drives bot executions: one pass per bot through the safety
// gate, the market snapshot, the strategy rules, sizing, and order placement,
// with a single audit-log entry for whatever ends the pass.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"botcontrol/internal/market"
	"botcontrol/internal/models"
	"botcontrol/internal/safety"
	"botcontrol/internal/sizing"
	"botcontrol/internal/strategy"
	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

// EventPublisher is the slice of the message-queue publisher the executor
// uses. Nil disables event publication.
type EventPublisher interface {
	Publish(queueName string, message interface{}) error
}

// Storage is the persistence surface the executor and scheduler run against.
// *Store is the production implementation.
type Storage interface {
	safety.Store
	BotByID(ctx context.Context, botID, userID uint) (*models.BotConfig, error)
	RunningBots(ctx context.Context) ([]models.BotConfig, error)
	PauseBot(ctx context.Context, botID uint, reason string) error
	RecordTrade(ctx context.Context, trade *models.TradeRecord) error
	BumpTradeCounters(ctx context.Context, botID uint) error
	LogActivity(ctx context.Context, log *models.ActivityLog) error
	Credentials(ctx context.Context, userID uint, exchangeName string) (exchange.Credentials, error)
}

// RunResult summarizes one execution pass for the API response and the
// scheduler's batch summary.
type RunResult struct {
	BotID    uint          `json:"bot_id"`
	BotName  string        `json:"bot_name"`
	Outcome  string        `json:"outcome"`
	Side     string        `json:"side,omitempty"`
	Quantity float64       `json:"quantity,omitempty"`
	Price    float64       `json:"price,omitempty"`
	OrderID  string        `json:"order_id,omitempty"`
	Reason   string        `json:"reason"`
	Duration time.Duration `json:"duration"`
}

// Executor runs the full execution pass for one bot at a time. Safe for
// concurrent use across distinct bots.
type Executor struct {
	store     Storage
	registry  *exchange.Registry
	provider  *market.Provider
	clock     *clock.Sync
	publisher EventPublisher
	eventQ    string
}

func NewExecutor(store Storage, registry *exchange.Registry, provider *market.Provider, clk *clock.Sync) *Executor {
	return &Executor{
		store:    store,
		registry: registry,
		provider: provider,
		clock:    clk,
	}
}

// WithPublisher enables execution-event publication to the given queue.
func (e *Executor) WithPublisher(p EventPublisher, queueName string) *Executor {
	e.publisher = p
	e.eventQ = queueName
	return e
}

// Execute runs one pass for the bot. The returned error is non-nil only for
// failures; a blocked, skipped or signal-less pass is a normal result.
// Exactly one activity-log entry is written for whatever ends the pass.
func (e *Executor) Execute(ctx context.Context, bot *models.BotConfig) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{BotID: bot.ID, BotName: bot.Name}
	defer func() {
		res.Duration = time.Since(start)
		e.publishEvent(res)
	}()

	if err := bot.Validate(); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		e.logRun(ctx, bot, models.SeverityError, models.CategorySystem,
			fmt.Sprintf("execution aborted: %v", err), nil)
		return res, err
	}

	// Credentials are loaded up front so the safety gate can use live equity
	// for its percentage guard. A load failure is deferred: the gate still
	// runs on the fallback baseline, and the error only surfaces if the pass
	// actually reaches order placement.
	creds, credErr := e.store.Credentials(ctx, bot.UserID, bot.Exchange)

	gate := safety.NewGate(e.store)
	if credErr == nil {
		gate = gate.WithEquityLookup(e.equityLookup(creds, bot))
	}
	verdict := gate.Evaluate(ctx, bot)
	if !verdict.CanTrade {
		return e.finishBlocked(ctx, bot, res, verdict)
	}

	snap, err := e.provider.Snapshot(ctx, bot.Symbol, bot.Exchange, bot.Mode)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = fmt.Sprintf("market data unavailable: %v", err)
		e.logRun(ctx, bot, models.SeverityError, models.CategoryMarket, res.Reason, nil)
		return res, err
	}

	decision := strategy.Evaluate(bot, snap)
	if !decision.ShouldTrade {
		res.Outcome = OutcomeNoSignal
		res.Reason = decision.Reason
		e.logRun(ctx, bot, models.SeverityInfo, models.CategoryStrategy, decision.Reason, models.JSONMap{
			"rsi": snap.RSI, "adx": snap.ADX, "momentum": snap.Momentum, "price": snap.Price,
		})
		return res, nil
	}

	if credErr != nil {
		res.Outcome = OutcomeFailed
		res.Reason = credErr.Error()
		e.logRun(ctx, bot, models.SeverityError, models.CategorySystem,
			fmt.Sprintf("cannot trade without credentials: %v", credErr), nil)
		return res, credErr
	}

	adapter, err := e.registry.Adapter(bot.Exchange, creds, e.clock)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		e.logRun(ctx, bot, models.SeverityError, models.CategorySystem, err.Error(), nil)
		return res, err
	}
	client := exchange.NewOrderClient(adapter)

	// Spot sells require owning the base asset. Nothing to sell is a clean
	// skip, not a failure.
	if bot.Mode == models.ModeSpot && decision.Side == models.SideSell {
		held, err := client.BaseAssetBalance(ctx, bot.Symbol)
		if err != nil {
			return e.finishError(ctx, bot, res, fmt.Errorf("base asset balance check: %w", err))
		}
		cons := exchange.LookupConstraints(bot.Symbol)
		if held < cons.MinQty {
			res.Outcome = OutcomeSkipped
			res.Reason = fmt.Sprintf("sell signal with no %s holdings (%.8f held)", exchange.BaseCoin(bot.Symbol), held)
			e.logRun(ctx, bot, models.SeverityInfo, models.CategoryTrade, res.Reason, nil)
			return res, nil
		}
	}

	sized, err := sizing.Size(sizing.Input{
		Bot:           bot,
		Price:         snap.Price,
		VolatilityPct: math.Abs(snap.Momentum),
	})
	if err != nil {
		return e.finishError(ctx, bot, res, err)
	}

	check, err := client.CheckBalance(ctx, bot.Symbol, decision.Side, sized.OrderValue, sized.Quantity, bot.Mode)
	if err != nil {
		return e.finishError(ctx, bot, res, err)
	}
	if !check.Sufficient {
		res.Outcome = OutcomeSkipped
		res.Reason = fmt.Sprintf("insufficient %s balance: %.4f available, %.4f required", check.Coin, check.Available, check.Required)
		e.logRun(ctx, bot, models.SeverityWarning, models.CategoryTrade, res.Reason, nil)
		return res, nil
	}

	linkID := fmt.Sprintf("bot%d-%s", bot.ID, uuid.NewString()[:18])
	order, err := client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      bot.Symbol,
		Side:        decision.Side,
		Qty:         sized.Quantity,
		Mode:        bot.Mode,
		OrderLinkID: linkID,
	})
	if err != nil {
		return e.finishError(ctx, bot, res, err)
	}

	trade := &models.TradeRecord{
		UserID:      bot.UserID,
		BotID:       bot.ID,
		Exchange:    bot.Exchange,
		Symbol:      bot.Symbol,
		Mode:        bot.Mode,
		Side:        decision.Side,
		Quantity:    sized.Quantity,
		Price:       snap.Price,
		Status:      models.TradeStatusOpen,
		OrderID:     order.OrderID,
		OrderLinkID: order.OrderLinkID,
		ExecutedAt:  time.Now().UTC(),
	}
	if err := e.store.RecordTrade(ctx, trade); err != nil {
		// The order is live on the exchange; a bookkeeping failure must be
		// loud but cannot undo the fill.
		logger.WithFields(logger.Fields{"bot_id": bot.ID, "order_id": order.OrderID}).
			WithError(err).Error("order placed but trade record failed")
	}
	if err := e.store.BumpTradeCounters(ctx, bot.ID); err != nil {
		logger.WithField("bot_id", bot.ID).WithError(err).Warn("trade counter update failed")
	}

	// Protective stop-loss/take-profit for futures. Failure leaves a naked
	// position, worth a warning, but the primary fill already succeeded.
	if bot.Mode == models.ModeFutures {
		slPct, tpPct := bot.StopLossPct, bot.TakeProfitPct
		if err := client.AttachProtectiveOrders(ctx, bot.Symbol, decision.Side, bot.Mode, slPct, tpPct); err != nil {
			e.logRun(ctx, bot, models.SeverityWarning, models.CategoryTrade,
				fmt.Sprintf("order %s filled but protective orders failed: %v", order.OrderID, err), nil)
		}
	}

	res.Outcome = OutcomeTraded
	res.Side = decision.Side
	res.Quantity = sized.Quantity
	res.Price = snap.Price
	res.OrderID = order.OrderID
	res.Reason = decision.Reason
	e.logRun(ctx, bot, models.SeveritySuccess, models.CategoryTrade,
		fmt.Sprintf("%s %.8f %s at %.4f: %s", decision.Side, sized.Quantity, bot.Symbol, snap.Price, decision.Reason),
		models.JSONMap{
			"order_id":      order.OrderID,
			"order_link_id": order.OrderLinkID,
			"confidence":    decision.Confidence,
			"order_value":   sized.OrderValue,
		})
	return res, nil
}

// finishBlocked records a safety-gate block and performs the pause transition
// when the verdict escalates.
func (e *Executor) finishBlocked(ctx context.Context, bot *models.BotConfig, res *RunResult, verdict safety.Verdict) (*RunResult, error) {
	res.Outcome = OutcomeBlocked
	res.Reason = verdict.Reason

	if verdict.ShouldPause {
		if err := e.store.PauseBot(ctx, bot.ID, verdict.Reason); err != nil {
			logger.WithField("bot_id", bot.ID).WithError(err).Error("pause transition failed")
		} else {
			bot.Status = models.BotStatusPaused
			bot.PausedReason = verdict.Reason
		}
	}

	e.logRun(ctx, bot, models.SeverityWarning, models.CategorySafety,
		fmt.Sprintf("blocked by %s: %s", verdict.Rule, verdict.Reason),
		models.JSONMap{"rule": verdict.Rule, "paused": verdict.ShouldPause})
	return res, nil
}

func (e *Executor) finishError(ctx context.Context, bot *models.BotConfig, res *RunResult, err error) (*RunResult, error) {
	res.Outcome = OutcomeFailed
	res.Reason = err.Error()
	severity, category := classify(err)
	e.logRun(ctx, bot, severity, category, err.Error(), nil)
	if isTransient(err) {
		// Transient failures resolve on their own; the next scheduled run
		// retries naturally.
		return res, nil
	}
	return res, err
}

// equityLookup builds the live account-value source for the daily loss guard.
func (e *Executor) equityLookup(creds exchange.Credentials, bot *models.BotConfig) safety.EquityFunc {
	return func(ctx context.Context) (float64, error) {
		adapter, err := e.registry.Adapter(bot.Exchange, creds, e.clock)
		if err != nil {
			return 0, err
		}
		bal, err := adapter.WalletBalance(ctx, exchange.QuoteCoin(bot.Symbol), bot.Mode)
		if err != nil {
			return 0, err
		}
		return bal.Total, nil
	}
}

func (e *Executor) logRun(ctx context.Context, bot *models.BotConfig, severity, category, message string, details models.JSONMap) {
	entry := &models.ActivityLog{
		BotID:    bot.ID,
		UserID:   bot.UserID,
		Severity: severity,
		Category: category,
		Message:  message,
		Details:  details,
	}
	if err := e.store.LogActivity(ctx, entry); err != nil {
		logger.WithField("bot_id", bot.ID).WithError(err).Error("activity log write failed")
	}
}

func (e *Executor) publishEvent(res *RunResult) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(e.eventQ, res); err != nil {
		logger.WithField("bot_id", res.BotID).WithError(err).Warn("execution event publish failed")
	}
}
