package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taxfolio/paysync/internal/config"
	"github.com/taxfolio/paysync/internal/database"
	"github.com/taxfolio/paysync/internal/provider"
	"github.com/taxfolio/paysync/internal/repository"
	"github.com/taxfolio/paysync/internal/runner"
	"github.com/taxfolio/paysync/internal/service"
	"github.com/taxfolio/paysync/internal/vault"
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

	// Initialize the credential vault. A missing or malformed key is fatal.
	credentialVault, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	connRepo := repository.NewConnectionRepository(db)
	jobRepo := repository.NewSyncJobRepository(db)
	entityRepo := repository.NewEntityRepository(db)

	// Initialize provider client
	providerClient := provider.NewClient(
		cfg.ProviderClientID,
		cfg.ProviderClientSecret,
		cfg.ProviderBaseURL,
		cfg.ProviderTokenURL,
	)
	providerClient.SetMaxRetries(cfg.MaxRetries)

	// Initialize sync engine and runner
	engine := service.NewSyncEngine(connRepo, jobRepo, entityRepo, providerClient, credentialVault, cfg.SyncWorkers)
	r := runner.New(cfg, jobRepo, engine)
	engine.SetWaker(r)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start runner in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Runner error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
