package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Hephaestus/internal/api"
	"Hephaestus/internal/app"
	"Hephaestus/internal/config"
	"Hephaestus/internal/models"
	"Hephaestus/pkg/logger"
	"Hephaestus/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := os.Getenv("HEPHAESTUS_CONFIG")
	if configPath == "" {
		configPath = "internal/config/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)
	serviceLogger := logger.New("OrchestratorService", "", "")

	// The websocket fan-out doubles as an event publisher.
	connManager := api.NewConnectionManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.BuildCore(ctx, cfg, serviceLogger, connManager)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Kind: "startup_error", Message: err.Error()}).
			Fatal("Failed to build orchestration core")
	}
	serviceLogger.Info("Orchestration core ready")

	var limiter ratelimiter.RateLimiter
	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err = api.NewRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Kind: "startup_error", Message: err.Error()}).
				Fatal("Failed to create rate limiter")
		}
		serviceLogger.Info("Rate limiter enabled: " + cfg.Middleware.RateLimiter.Algorithm)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(core.Orchestrator, connManager, serviceLogger)
	api.RegisterRoutes(router, apiHandler, limiter)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Kind: "server_error", Message: err.Error()}).
				Fatal("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Kind: "shutdown_error", Message: err.Error()}).
			Warn("HTTP server shutdown failed")
	}

	core.Shutdown()
	serviceLogger.Info("Shutdown complete")
}
