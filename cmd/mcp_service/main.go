package main

import (
	"context"
	"log"
	"os"

	"Hephaestus/internal/app"
	"Hephaestus/internal/config"
	"Hephaestus/internal/mcpserver"
	"Hephaestus/internal/models"
	"Hephaestus/pkg/logger"

	"github.com/mark3labs/mcp-go/server"
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
	serviceLogger := logger.New("MCPService", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.BuildCore(ctx, cfg, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Kind: "startup_error", Message: err.Error()}).
			Fatal("Failed to build orchestration core")
	}
	defer core.Shutdown()

	s := mcpserver.New(core.Orchestrator, cfg.App.Version, serviceLogger)

	// The MCP transport is stdio: the client owns the process lifecycle.
	if err := server.ServeStdio(s); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Kind: "server_error", Message: err.Error()}).
			Error("MCP server stopped")
	}
}
