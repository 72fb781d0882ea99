package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	logrus "github.com/sirupsen/logrus"

	"botcontrol/internal/engine"
	"botcontrol/internal/market"
	"botcontrol/pkg/clock"
	"botcontrol/pkg/config"
	"botcontrol/pkg/crypto"
	"botcontrol/pkg/exchange"
	"botcontrol/pkg/exchange/binance"
	"botcontrol/pkg/exchange/bybit"
)

// ExecuteRequestMessage is an on-demand execution request consumed from the
// queue, published by the API or an external scheduler.
type ExecuteRequestMessage struct {
	BotID  uint `json:"bot_id"`
	UserID uint `json:"user_id"`
}

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	config.InitDB()

	keys, err := crypto.NewKeyManager()
	if err != nil {
		logrus.Fatal("Failed to initialize key manager: ", err)
	}

	clk := clock.New(clock.DefaultSources(nil)...)
	if err := clk.SyncOnce(context.Background()); err != nil {
		logrus.WithError(err).Warn("initial clock sync failed, starting on local time")
	}

	registry := exchange.NewRegistry()
	registry.Register("bybit", bybit.New)
	registry.Register("binance", binance.New)

	priceCache := market.NewPriceCache()
	provider := market.NewProvider(registry, clk, priceCache)

	store := engine.NewStore(config.DB, keys)
	executor := engine.NewExecutor(store, registry, provider, clk)
	scheduler := engine.NewScheduler(store, executor)

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	publisher, err := config.NewPublisher()
	if err != nil {
		logrus.WithError(err).Warn("publisher setup failed, execution events disabled")
	} else {
		defer publisher.Close()
		executor.WithPublisher(publisher, config.QueueExecutionEvents)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stream live prices for the configured symbols so snapshots skip one
	// REST round trip. Format: comma-separated, e.g. "BTCUSDT,ETHUSDT"
	for _, symbol := range strings.Split(os.Getenv("MARKET_STREAM_SYMBOLS"), ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol != "" {
			go priceCache.StreamBinanceTicker(ctx, symbol)
		}
	}

	// Scheduled batch runs. Default every minute; override with CRON_SPEC.
	spec := os.Getenv("CRON_SPEC")
	if spec == "" {
		spec = "* * * * *"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := scheduler.RunAll(ctx); err != nil {
			logrus.WithError(err).Error("scheduled batch run failed")
		}
	}); err != nil {
		logrus.Fatal("Invalid cron spec: ", err)
	}
	c.Start()
	defer c.Stop()

	// Create consumer for on-demand execution requests
	msgConsumer, err := config.NewConsumer(config.QueueExecuteRequests)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	logrus.Info("Execution worker started, waiting for messages...")

	// Start consuming messages
	err = msgConsumer.Consume(func(msg []byte) error {
		var request ExecuteRequestMessage
		if err := json.Unmarshal(msg, &request); err != nil {
			logrus.Errorf("Failed to unmarshal message: %v", err)
			return err
		}

		bot, err := store.BotByID(ctx, request.BotID, request.UserID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"bot_id":  request.BotID,
				"user_id": request.UserID,
			}).Warn("execution request for unknown bot")
			return nil
		}

		result, err := executor.Execute(ctx, bot)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"bot_id":  bot.ID,
				"outcome": result.Outcome,
			}).WithError(err).Warn("on-demand execution failed")
			// Execution failures are recorded in the activity log; requeueing
			// would retry against the same state.
			return nil
		}

		logrus.WithFields(logrus.Fields{
			"bot_id":  bot.ID,
			"outcome": result.Outcome,
			"reason":  result.Reason,
		}).Info("on-demand execution complete")
		return nil
	})

	if err != nil {
		log.Fatal("Failed to start consumer: ", err)
	}
}
