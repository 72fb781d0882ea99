package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"

	"botcontrol/internal/engine"
	"botcontrol/internal/handlers"
	"botcontrol/internal/market"
	"botcontrol/internal/routes"
	"botcontrol/pkg/clock"
	"botcontrol/pkg/config"
	"botcontrol/pkg/crypto"
	"botcontrol/pkg/exchange"
	"botcontrol/pkg/exchange/binance"
	"botcontrol/pkg/exchange/bybit"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	config.InitDB()
	if os.Getenv("MIGRATE_ON_START") == "true" {
		config.ExecuteMigrations()
	}

	keys, err := crypto.NewKeyManager()
	if err != nil {
		log.Fatal("Failed to initialize key manager:", err)
	}

	// Synchronized clock shared by every exchange adapter
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

	// Initialize RabbitMQ (optional, will log warning if not configured)
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer func() {
			if config.RabbitMQ != nil {
				config.RabbitMQ.Close()
			}
		}()

		publisher, err := config.NewPublisher()
		if err != nil {
			logrus.WithError(err).Warn("publisher setup failed, execution events disabled")
		} else {
			defer publisher.Close()
			executor.WithPublisher(publisher, config.QueueExecutionEvents)
		}
	} else {
		logrus.Info("RabbitMQ not configured, skipping initialization")
	}

	// Wire engine components into the handler package
	handlers.InitEngine(store, executor, scheduler, provider, clk, registry)
	handlers.InitKeyManager(keys)

	// Set up router
	r := routes.SetupRouter()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
