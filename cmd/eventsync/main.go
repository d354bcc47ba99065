package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"eventsync/internal/api"
	"eventsync/internal/config"
	"eventsync/internal/handlers"
	"eventsync/internal/ledger"
	"eventsync/internal/ledger/retry"
	"eventsync/internal/poller"
	"eventsync/internal/processor"
	"eventsync/internal/queue"
	"eventsync/internal/recovery"
	"eventsync/internal/storage"

	"github.com/joho/godotenv"
	rpcclient "github.com/stellar/go/clients/rpcclient"
)

func main() {
	fmt.Println("🌟 Starting Event Sync...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"rpc_server", cfg.RPCServerURL,
		"contract_id", cfg.ContractID,
		"log_level", cfg.LogLevel,
	)

	// 3. Initialize database connection
	ctx := context.Background()
	repository, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer repository.Close()
	slog.Info("Database connected successfully")

	// 4. Resolve the starting ledger when none is configured
	startLedger := cfg.StartLedger
	if startLedger == 0 {
		rpcClient := rpcclient.NewClient(cfg.RPCServerURL, &http.Client{})
		health, err := rpcClient.GetHealth(ctx)
		if err != nil {
			log.Fatalf("❌ Failed to get health from RPC: %v", err)
		}
		// Start from 10 ledgers before latest to be safe
		startLedger = health.LatestLedger - 10
		slog.Info("Starting from recent ledger",
			"latest", health.LatestLedger,
			"starting_from", startLedger,
		)
	}

	// 5. Connect the work queue
	workQueue, err := queue.NewJetStreamQueue(cfg.NATSURL, queue.Config{
		StreamName:   cfg.StreamName,
		Subject:      cfg.Subject,
		ConsumerName: cfg.ConsumerName,
		MaxDeliver:   cfg.MaxDeliver,
		AckWait:      cfg.AckWait,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer workQueue.Close()

	// 6. Build the handler registry and processor workers
	registry, err := handlers.NewRegistry(
		handlers.NewAccountHandler(repository),
		handlers.NewExperienceHandler(repository),
		handlers.NewTransferHandler(repository),
	)
	if err != nil {
		log.Fatalf("❌ Failed to build handler registry: %v", err)
	}
	slog.Info("Handler registry ready", "events", registry.Size())

	sub, err := workQueue.Subscribe()
	if err != nil {
		log.Fatalf("❌ Failed to subscribe to work queue: %v", err)
	}

	consumer := processor.NewConsumer(processor.ConsumerConfig{
		Workers:  cfg.WorkerCount,
		NakDelay: cfg.NakDelay,
	}, processor.New(repository, registry), sub)

	// 7. Create the ledger poller
	source := ledger.NewRPCSource(cfg.RPCServerURL, cfg.EventsPerFetch)
	defer source.Close()

	strategy := retry.NewStrategy(retry.LoadConfig())
	p := poller.New(poller.Config{
		ContractID:  cfg.ContractID,
		StartLedger: startLedger,
		Interval:    cfg.PollInterval,
		MaxWindow:   cfg.MaxLedgerWindow,
	}, source, repository, workQueue, strategy)

	// 8. Create the recovery scheduler
	rec := recovery.New(recovery.Config{
		Interval:  cfg.RecoveryInterval,
		Grace:     cfg.RecoveryGrace,
		BatchSize: cfg.RecoveryBatch,
	}, repository, workQueue)

	// 9. Start the operational API server
	apiServer := api.NewServer(cfg.APIPort, repository)
	if err := apiServer.Start(); err != nil {
		log.Fatalf("❌ Failed to start API server: %v", err)
	}

	// 10. Run everything until an interrupt arrives
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		p.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		rec.Run(runCtx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Warn("Interrupt received, shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down API server", "error", err)
	}

	slog.Info("Event Sync stopped")
}
