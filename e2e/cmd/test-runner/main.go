package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/saaga0h/sahay-platform/e2e/internal/executor"
	"github.com/saaga0h/sahay-platform/e2e/internal/reporter"
	"github.com/saaga0h/sahay-platform/e2e/internal/scenario"
	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/postgres"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

func main() {
	scenarioPath := pflag.String("scenario", "", "Path to YAML scenario file (required)")
	outputDir := pflag.String("output-dir", "./test-output", "Output directory for test artifacts")

	cfg := config.NewConfig()
	cfg.ServiceName = "e2e-test-runner"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --scenario is required")
		pflag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	scen, err := scenario.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load scenario: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mqttClient := mqtt.NewClient(cfg, logger)
	if err := mqttClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to MQTT broker", "error", err)
		os.Exit(1)
	}
	defer mqttClient.Disconnect()

	redisClient := redis.NewClient(cfg, logger)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	var pg postgres.Client
	if cfg.PostgresHost != "" {
		pgClient := postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pgClient.Disconnect()
		pg = pgClient
	}

	runner := executor.NewRunner(mqttClient, redisClient, pg, logger)
	result, timeline, err := runner.Run(ctx, scen)
	if err != nil {
		logger.Error("Scenario run failed", "error", err)
		os.Exit(1)
	}

	name := strings.TrimSuffix(filepath.Base(*scenarioPath), filepath.Ext(*scenarioPath))
	report := reporter.GenerateTimeline(result, timeline)
	fmt.Println(report)

	artifacts := []struct {
		kind string
		save func() error
	}{
		{"timeline", func() error {
			return reporter.SaveTimeline(report, filepath.Join(*outputDir, "timelines", name+".txt"))
		}},
		{"capture", func() error { return runner.SaveCapture(filepath.Join(*outputDir, "captures", name+".json")) }},
		{"summary", func() error {
			return reporter.SaveSummary(result, filepath.Join(*outputDir, "summaries", name+".json"))
		}},
	}
	for _, a := range artifacts {
		if err := a.save(); err != nil {
			logger.Warn("Failed to save artifact", "kind", a.kind, "error", err)
		}
	}

	if !result.Passed {
		os.Exit(1)
	}
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
