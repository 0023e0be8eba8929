package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appstore-notifications/internal/api"
	"appstore-notifications/internal/config"
	"appstore-notifications/internal/database"
	"appstore-notifications/internal/queue"
	"appstore-notifications/internal/services"
	"appstore-notifications/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	cfg := config.AppConfig

	// Initialize logging
	logging.InitLogging()

	if cfg.BundleID == "" {
		log.Fatal("BUNDLE_ID is required")
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	trustAnchor, err := services.LoadTrustAnchor(cfg.RootCAPath)
	if err != nil {
		log.Fatal("Failed to load Apple root certificate:", err)
	}

	verifier, err := services.NewNotificationVerifier(services.VerifierConfig{
		Environment:       cfg.AppleEnvironment,
		BundleID:          cfg.BundleID,
		TrustAnchor:       trustAnchor,
		AllowedAlgorithms: cfg.SigningAlgorithms,
	})
	if err != nil {
		log.Fatal("Failed to create notification verifier:", err)
	}

	store := database.NewStore(database.GetDB())
	notifier := services.NewWebhookNotifier(cfg.WebhookCallbackURL, cfg.WebhookSecret)
	notifier.Start(cfg.WebhookSenders)
	processor := services.NewNotificationProcessor(
		verifier,
		store,
		services.NewSubscriptionEngine(store, nil),
		notifier,
		services.NewAlerter(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.AlertEmail, cfg.ServiceName),
	)

	var q queue.Queue
	if redisClient := database.GetRedis(); redisClient != nil {
		q = queue.NewRedisQueue(redisClient, processor.Process, cfg.QueueWorkers, cfg.QueueMaxRetries)
	} else {
		q = queue.NewLocalQueue(processor.Process, cfg.QueueWorkers, cfg.QueueMaxRetries, 0)
	}
	q.Start()

	// Set Gin mode
	gin.SetMode(cfg.Mode)
	r := gin.Default()

	handlers := api.NewHandlers(q, store, database.Ping, cfg.ServiceName, cfg.AppleEnvironment)
	api.SetupRoutes(r, handlers, cfg.AdminAPIKey)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.Infof("Starting server on port %s (environment %s, bundle %s)", cfg.Port, cfg.AppleEnvironment, cfg.BundleID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	logging.Infof("Received %s, shutting down", s)

	// stop accepting notifications before draining the queue
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorf("HTTP server shutdown failed: %v", err)
	}
	q.Stop()

	// the queue is drained, so no more deliveries can be dispatched
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer notifierCancel()
	notifier.Stop(notifierCtx)
	logging.Infof("Server stopped")
}
