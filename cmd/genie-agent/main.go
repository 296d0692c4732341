package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saaga0h/sahay-platform/internal/automation"
	"github.com/saaga0h/sahay-platform/internal/bridge"
	"github.com/saaga0h/sahay-platform/internal/monitor"
	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/health"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

func main() {
	cfg := config.NewConfig()
	cfg.ServiceName = "genie-agent"
	cfg.HealthPort = 8081
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting SAHAY Genie Agent",
		"service_name", cfg.ServiceName,
		"device", cfg.DeviceID,
		"mqtt_broker", cfg.MQTTAddress(),
		"flow_config", cfg.FlowConfigPath,
		"log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mqttClient := mqtt.NewClient(cfg, logger)
	if err := mqttClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to MQTT broker", "error", err)
		os.Exit(1)
	}
	defer mqttClient.Disconnect()

	b := bridge.New(mqttClient, cfg.DeviceID, logger)
	if err := b.Start(); err != nil {
		logger.Error("Failed to start handset bridge", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	loader := automation.NewLoader(cfg.FlowConfigPath, logger)
	logger.Info("Automation platforms available", "platforms", loader.Platforms())

	engine := automation.NewEngine(bridge.NewHandset(b), logger)
	manager := automation.NewManager(engine, loader, logger)

	checker := health.NewChecker(mqttClient, nil, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HealthPort), Handler: checker.Mux()}
	go func() {
		logger.Info("Starting health check server", "port", cfg.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(monitor.Guard(gctx, logger, "automation", automation.NewAgent(mqttClient, manager, cfg, logger).Start))

	if err := g.Wait(); err != nil {
		logger.Error("Automation agent failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}
	logger.Info("Genie agent shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
