package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/app"
	"upgrade_checkout_echo/internal/config"
	"upgrade_checkout_echo/internal/tasks"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.FromEnv()
	log := app.NewLogger(cfg.LogLevel)
	if envErr != nil {
		log.Info("No .env file found, using system environment")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise application")
	}
	defer a.Close()

	if !a.Capabilities.TaskQueue {
		log.Fatal("Worker needs DATABASE_URL for the task queue")
	}

	// Initialize Task Registry
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, a.Reconciler, log)
	runner := tasks.NewRunner(a.DB, registry, log)

	log.WithFields(logrus.Fields{
		"interval": cfg.WorkerInterval.String(),
		"tasks":    registry.Names(),
	}).Info("Worker started")

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	// Run once at startup so a restart does not delay queued retries
	runner.ProcessDue(ctx)

	for {
		select {
		case <-ticker.C:
			runner.ProcessDue(ctx)
		case <-ctx.Done():
			log.Info("Shutting down worker...")
			return
		}
	}
}
