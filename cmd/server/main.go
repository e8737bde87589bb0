package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nipeshtamang/ebus-sub002/internal/app"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/database/migrations"
	"github.com/nipeshtamang/ebus-sub002/internal/handlers"
	"github.com/nipeshtamang/ebus-sub002/internal/middleware"
	"github.com/nipeshtamang/ebus-sub002/internal/services"
	"github.com/nipeshtamang/ebus-sub002/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger("info").Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	logger.Info("Starting eBus booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	logger.WithField("wiring", a.Describe()).Info("Services initialized")

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	applied, err := migrations.Apply(migrateCtx, a.DB.DB)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}
	if len(applied) > 0 {
		logger.WithField("migrations", applied).Info("Migrations applied")
	}

	// Background jobs
	cronService := services.NewCronService(a.Maintenance, cfg.Maintenance, logger)
	if cfg.Maintenance.EnableCron {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		defer cronService.Stop()
	} else {
		logger.Info("Cron disabled, maintenance jobs run only on demand")
	}

	holdSweeper := services.NewHoldExpirationService(a.Maintenance, cfg.Maintenance.HoldSweepInterval, logger)
	holdSweeper.Start()
	defer holdSweeper.Stop()

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	health := handlers.HealthCheck(a.DB, version)
	router.GET("/health", health)

	routes := &handlers.Routes{
		Schedules:   handlers.NewScheduleHandler(a.Schedules, a.Holds, logger),
		Bookings:    handlers.NewBookingHandler(a.Bookings, a.Cancellations, logger),
		Payments:    handlers.NewPaymentHandler(a.Payments, logger),
		Maintenance: handlers.NewMaintenanceHandler(a.Maintenance, cronService, logger),
	}

	v1 := router.Group("/api/v1")
	v1.GET("/health", health)
	routes.Register(v1, middleware.AuthMiddleware(jwtService, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
