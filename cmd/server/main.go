package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tallyport/tallyport/internal/api"
	"github.com/tallyport/tallyport/internal/billing"
	"github.com/tallyport/tallyport/internal/config"
	"github.com/tallyport/tallyport/internal/database"
	"github.com/tallyport/tallyport/internal/jobs"
	"github.com/tallyport/tallyport/internal/link"
	"github.com/tallyport/tallyport/internal/messaging"
	"github.com/tallyport/tallyport/internal/metrics"
	"github.com/tallyport/tallyport/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get underlying SQL database for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Construct stores and external clients once; handlers get references.
	challenges := store.NewChallengeStore(db)
	owners := store.NewOwnerDirectory(db)
	links := store.NewLinkStore(db)
	users := store.NewUserStore(db)
	gateway := messaging.NewGateway(cfg.Messaging)
	billingClient := billing.NewClient(cfg.Billing)
	linkService := link.NewService(challenges, owners, links, gateway)
	collector := metrics.NewCollector()

	// Start challenge sweeper
	scheduler := jobs.NewScheduler(challenges)
	scheduler.Start()
	defer scheduler.Stop()

	// Setup API router
	router := api.NewRouter(cfg, api.Deps{
		Users:     users,
		Link:      linkService,
		Billing:   billingClient,
		Collector: collector,
	})

	// Create HTTP server. The write timeout leaves headroom for the
	// 20-second entitlement reconciliation loop.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
