package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	httpapi "utilbill-backend/internal/api/http"
	"utilbill-backend/internal/app"
	"utilbill-backend/internal/config"
	"utilbill-backend/internal/jobs"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'mark-overdue-bills', 'generate-pending-bills', 'all-nightly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting billing cronjob runner...", "log_level", cfg.Log.Level, "timezone", cfg.Scheduler.Timezone)

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("Failed to close resources", "error", err)
		}
	}()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(&jobs.Services{
		Billing: application.Billing,
		Sweeper: application.Sweeper,
	}, application.Metrics, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(jobRunner, *runOnce); err != nil {
			application.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Ops endpoint
	var opsServer *http.Server
	if cfg.Metrics.Enabled {
		handler := httpapi.NewOpsHandler(application.Store, application.Registry)
		opsServer = httpapi.NewOpsServer(cfg.Metrics.Address, handler)
		go func() {
			logger.Info("Ops HTTP server listening", "address", cfg.Metrics.Address)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Ops HTTP server error", "error", err)
			}
		}()
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		application.Close()
		os.Exit(1)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ops HTTP server shutdown failed", "error", err)
		}
	}
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) error {
	if jobName == "all-nightly" {
		return jobRunner.RunAllNightlyJobs()
	}

	err := jobRunner.Run(jobName)
	if err != nil && !slices.Contains(jobs.JobNames(), jobName) {
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		for _, name := range jobs.JobNames() {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Printf("  - all-nightly\n")
	}
	return err
}
