package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrovale/paysync-worker/internal/bank"
	"github.com/agrovale/paysync-worker/internal/config"
	"github.com/agrovale/paysync-worker/internal/database"
	"github.com/agrovale/paysync-worker/internal/metrics"
	"github.com/agrovale/paysync-worker/internal/notifier"
	"github.com/agrovale/paysync-worker/internal/queue"
	"github.com/agrovale/paysync-worker/internal/reconcile"
	"github.com/agrovale/paysync-worker/internal/repository"
	"github.com/agrovale/paysync-worker/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	jobRepo := repository.NewSyncJobRepository(db)
	batchRepo := repository.NewPaymentBatchRepository(db)
	itemRepo := repository.NewPaymentItemRepository(db)

	// Initialize services
	queueService := queue.NewService(jobRepo)
	engine := reconcile.NewEngine(batchRepo, itemRepo, queueService, notifier.NewLogNotifier())

	// Initialize bank client
	bankClient := bank.NewClient(cfg.BankBaseURL, cfg.BankTokenURL, cfg.BankClientID, cfg.BankClientSecret, cfg.BankAppKey)

	// Initialize metrics and worker
	recorder := metrics.NewRecorder()
	w := worker.New(cfg, queueService, batchRepo, itemRepo, bankClient, engine, recorder)

	// Serve metrics
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: recorder.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start worker in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		_ = metricsServer.Shutdown(shutdownCtx)

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Worker error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
