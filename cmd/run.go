package cmd

import (
	"context"
	"fmt"
	"time"

	"lottery/api"
	"lottery/application"
	"lottery/config"
	"lottery/database"
	"lottery/events"
	"lottery/infrastructure"
	"lottery/infrastructure/observability"
	"lottery/models"
	"lottery/repository"
	"lottery/service"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the lottery host
func Run(ctx context.Context) error {
	cfg := config.Get()
	if err := ConfigureLogging(cfg); err != nil {
		return err
	}
	log.WithField("environment", cfg.Environment).Info("Starting lottery host...")

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("Closing database connection...")
		db.Close()
	}()
	log.Info("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize metrics
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics provider")
		}
	}()
	metrics.SubscribeTo(eventBus)

	// Forward committed events to NATS when configured
	if cfg.NATSServers != "" {
		natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		defer natsClient.Close()

		mapper := infrastructure.NewEventSubjectMapper()
		if err := natsClient.EnsureLotteryEventStream(mapper); err != nil {
			return err
		}
		infrastructure.NewNATSEventForwarder(natsClient, mapper, metrics).SubscribeTo(eventBus)
	} else {
		log.Info("NATS_SERVERS not set, event forwarding disabled")
	}

	// Initialize services
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	clock := models.SystemClock{}
	lotteryService := service.NewLotteryService(uowFactory, models.NewClockSelector(clock), clock, cfg)
	accountService := service.NewAccountService(uowFactory)

	// Start the settlement worker
	if cfg.SettleInterval > 0 {
		worker := application.NewSettlementWorker(lotteryService, cfg.SettleInterval)
		stopWorker, workerDone := worker.Start(ctx)
		defer func() {
			stopWorker()
			<-workerDone
		}()
	} else {
		log.Info("SETTLE_INTERVAL not set, automatic settlement disabled")
	}

	// Serve the host API until shutdown
	server, err := api.Listen(cfg.GRPCAddr, api.NewLotteryServer(lotteryService, accountService), metrics)
	if err != nil {
		return err
	}
	if err := server.Serve(ctx); err != nil {
		return err
	}

	log.Info("Shutting down lottery host...")
	return nil
}
