package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitsync/fitsync-worker/internal/config"
	"github.com/fitsync/fitsync-worker/internal/database"
	"github.com/fitsync/fitsync-worker/internal/garmin"
	"github.com/fitsync/fitsync-worker/internal/repository"
	"github.com/fitsync/fitsync-worker/internal/service"
	"github.com/fitsync/fitsync-worker/internal/watcher"
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
	linkRepo := repository.NewProviderLinkRepository(db)
	entryRepo := repository.NewEntryRepository(db)

	// Initialize Garmin client and processing services
	garminClient := garmin.NewClient(cfg.GarminClientID, cfg.GarminClientSecret)
	processor := service.NewGarminDataProcessor(entryRepo)
	orchestrator := service.NewOrchestrator(cfg, jobRepo, linkRepo, entryRepo, garminClient, processor)

	// Initialize watcher
	w := watcher.New(cfg, jobRepo, orchestrator)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
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

		done := make(chan struct{})
		go func() {
			orchestrator.Wait() // let in-flight driver loops reach a chunk boundary
			close(done)
		}()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case <-done:
			if err := <-errChan; err != nil && err != context.Canceled {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
