package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/korrelix/korrelix/internal/config"
	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/events"
	"github.com/korrelix/korrelix/internal/handlers"
	"github.com/korrelix/korrelix/internal/jobs"
	"github.com/korrelix/korrelix/internal/middleware"
	"github.com/korrelix/korrelix/internal/notify"
	"github.com/korrelix/korrelix/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Korrelix incident pipeline...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook/*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	db := database.GetDB()

	// Apply the YAML bootstrap if configured (companies, users,
	// technicians, assignment rules, on-call shifts)
	if cfg.SeedFile != "" {
		if err := database.LoadSeedFile(db, cfg.SeedFile); err != nil {
			log.Fatalf("Failed to apply seed file %s: %v", cfg.SeedFile, err)
		}
	}

	// Websocket event hub for dashboards
	hub := events.NewHub()

	// Notifier: Slack when configured, process log otherwise
	var notifier services.Notifier
	if cfg.SlackBotToken != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertsChannel)
		log.Printf("Slack notifications enabled (channel: %s)", cfg.SlackAlertsChannel)
	} else {
		notifier = notify.NewLogNotifier()
		log.Printf("Slack not configured, notifications go to the process log")
	}

	audit := database.NewAuditRecorder(db)

	// One lock per company serializes that tenant's pipeline mutations.
	// All services share the same instance.
	locks := services.NewKeyedMutex()

	slaService := services.NewSLAService(db, locks, notifier, hub, audit)
	correlationService := services.NewCorrelationService(db, locks, slaService, notifier, hub)
	overflowQueue := services.NewOverflowQueue(db, notifier, hub)
	onCall := services.NewOnCallSchedule(db)
	assignmentService := services.NewAssignmentService(db, locks, overflowQueue, onCall, notifier, hub, audit)
	incidentService := services.NewIncidentService(db, locks, assignmentService, overflowQueue, hub, audit)

	// Background jobs
	stop := make(chan struct{})
	slaMonitor := jobs.NewSLAMonitor(db, slaService)
	go slaMonitor.Start(cfg.SLAMonitorInterval, stop)
	log.Printf("SLA monitor started (interval: %s)", cfg.SLAMonitorInterval)

	correlationSweep := jobs.NewCorrelationSweep(db, correlationService)
	go correlationSweep.Start(cfg.CorrelationSweepInterval, stop)
	log.Printf("Correlation sweep started (interval: %s)", cfg.CorrelationSweepInterval)

	// HTTP handlers
	webhookHandler := handlers.NewWebhookHandler(db, correlationService)
	httpHandler := handlers.NewHTTPHandler(webhookHandler)
	apiHandler := handlers.NewAPIHandler(db, correlationService, slaService, assignmentService, incidentService, overflowQueue)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	mux.HandleFunc("/ws", hub.HandleWS)

	// Wrap all routes: request ID first, then CORS, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	// Start HTTP server in goroutine
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal, cleaning up...")

		close(stop)

		log.Println("Shutting down HTTP server...")
		if err := httpServer.Close(); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		}

		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}

		log.Println("Shutdown complete")
		os.Exit(0)
	}()

	log.Println("Korrelix is running! Press Ctrl+C to exit.")
	log.Printf("Alert webhook endpoint: http://localhost:%d/webhook/alerts/{company_uuid}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Keep the main goroutine alive
	for {
		time.Sleep(time.Hour)
	}
}
