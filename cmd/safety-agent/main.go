package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saaga0h/sahay-platform/internal/bridge"
	"github.com/saaga0h/sahay-platform/internal/cascade"
	"github.com/saaga0h/sahay-platform/internal/classifier"
	"github.com/saaga0h/sahay-platform/internal/fall"
	"github.com/saaga0h/sahay-platform/internal/inactivity"
	"github.com/saaga0h/sahay-platform/internal/location"
	"github.com/saaga0h/sahay-platform/internal/monitor"
	"github.com/saaga0h/sahay-platform/internal/settings"
	"github.com/saaga0h/sahay-platform/internal/timeline"
	"github.com/saaga0h/sahay-platform/internal/voice"
	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/health"
	"github.com/saaga0h/sahay-platform/pkg/llm"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/postgres"
	"github.com/saaga0h/sahay-platform/pkg/redis"
	"github.com/saaga0h/sahay-platform/pkg/twilio"
)

func main() {
	// Load configuration with hierarchy: defaults → .env/env → flags
	cfg := config.NewConfig()
	cfg.ServiceName = "safety-agent"
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

	logger.Info("Starting SAHAY Safety Agent",
		"service_name", cfg.ServiceName,
		"device", cfg.DeviceID,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"contacts", len(cfg.Contacts),
		"log_level", cfg.LogLevel)

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

	// Handset bridge
	b := bridge.New(mqttClient, cfg.DeviceID, logger)
	if err := b.Start(); err != nil {
		logger.Error("Failed to start handset bridge", "error", err)
		os.Exit(1)
	}
	defer b.Close()
	handset := bridge.NewHandset(b)

	// State
	store := settings.NewStore(redisClient, cfg.DeviceID, logger)
	events := timeline.New(redisClient, cfg.DeviceID, logger)

	// Escalation
	resolver := location.NewResolver(handset, 10*time.Second, logger)
	channels := cascade.Channels{
		SMS:        handset,
		Composer:   handset,
		WhatsApp:   handset,
		Packages:   handset,
		Caller:     handset,
		Dialer:     handset,
		Foreground: handset,
	}
	if tw := newTwilio(cfg, logger); tw != nil {
		// Server-side delivery works even when the handset is offline
		channels.SMS = tw
		channels.WhatsApp = &cascade.WhatsAppFallback{Primary: tw, Fallback: handset}
		channels.Caller = &cascade.CallerFallback{Primary: handset, Fallback: tw}
	}
	emergencyNumber := cascade.EmergencyNumber(cfg.CountryCode, cfg.EmergencyNumber)
	escalator := cascade.New(channels, cfg.Contacts, emergencyNumber, resolver, logger)

	// Detection
	arbiter := voice.NewArbiter()
	detector := inactivity.NewDetector(store, events, logger)
	confirmer := voice.NewConfirmer(handset, handset.NewRecognizer(), arbiter, cfg.VoiceListenTimeout, logger)

	orch := monitor.NewOrchestrator(monitor.Deps{
		Device:     cfg.DeviceID,
		Settings:   store,
		Timeline:   events,
		Detector:   detector,
		Confirmer:  confirmer,
		Escalator:  escalator,
		Classifier: newClassifier(cfg, logger),
		MQTT:       mqttClient,
		Threshold:  cfg.TriggerThreshold,
	}, logger)

	// Fall history: Postgres when configured, local SQLite otherwise
	fallStore, closeStore, err := openFallStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open fall history", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	countdown := fall.NewCountdown(cfg.DeviceID, fallStore, handset, func(ctx context.Context, reason string) {
		if _, err := orch.Escalate(ctx, monitor.SourceFall, reason); err != nil {
			logger.Warn("Fall escalation skipped", "error", err)
		}
	}, logger)

	checker := health.NewChecker(mqttClient, redisClient, logger)
	checker.AddProbe("monitoring", func(ctx context.Context) error {
		enabled, err := store.MonitoringEnabled(ctx)
		if err != nil {
			return err
		}
		if enabled && !orch.Alive() {
			return errors.New("enabled but not running")
		}
		return nil
	})
	httpServer := startHealthServer(cfg.HealthPort, checker, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(monitor.Guard(gctx, logger, "activity", inactivity.NewActivityAgent(mqttClient, detector, cfg, logger).Start))
	g.Go(monitor.Guard(gctx, logger, "fall", fall.NewAgent(mqttClient, countdown, cfg, logger).Start))
	g.Go(monitor.Guard(gctx, logger, "monitor", monitor.NewAgent(mqttClient, orch, cfg, logger).Start))
	g.Go(monitor.Guard(gctx, logger, "watchdog", monitor.NewWatchdog(orch, store, cfg.WatchdogInterval, logger).Run))
	g.Go(monitor.Guard(gctx, logger, "timeline", timeline.NewPublisher(events, mqttClient, cfg.DeviceID, logger).Start))
	g.Go(monitor.Guard(gctx, logger, "voice-trigger", monitor.NewVoiceTrigger(handset.NewRecognizer, arbiter, orch, logger).Run))

	if err := g.Wait(); err != nil {
		logger.Error("Subsystem failed", "error", err)
	}

	logger.Info("Initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orch.Stop(shutdownCtx)
	countdown.Wait()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}
	logger.Info("Safety agent shutdown complete")
}

func newTwilio(cfg *config.Config, logger *slog.Logger) *twilio.Client {
	if cfg.TwilioAccountSID == "" {
		logger.Info("Twilio not configured, using handset messaging only")
		return nil
	}
	client, err := twilio.NewClient(logger,
		twilio.WithAccountSID(cfg.TwilioAccountSID),
		twilio.WithAuthToken(cfg.TwilioAuthToken),
		twilio.WithFromNumber(cfg.TwilioFromNumber),
		twilio.WithWhatsAppFrom(cfg.TwilioWhatsAppFrom),
		twilio.WithRingSeconds(int(cascade.DefaultTimings().RingTotal/time.Second)),
		twilio.WithCallMessage("This is an emergency alert from SAHAY for "+cfg.DeviceID+". Please check your messages."))
	if err != nil {
		logger.Warn("Twilio disabled", "error", err)
		return nil
	}
	return client
}

func newClassifier(cfg *config.Config, logger *slog.Logger) *classifier.Classifier {
	var remote classifier.Remote
	if cfg.LLMEndpoint != "" {
		client := llm.NewOllamaClient(cfg.LLMEndpoint, logger)
		remote = classifier.NewLLMRemote(client, cfg.LLMModel, llm.NewMetricsCollector(logger), logger)
		logger.Info("Remote emergency classifier enabled", "endpoint", cfg.LLMEndpoint, "model", cfg.LLMModel)
	}
	return classifier.New(remote, cfg.ClassifierTimeout(), logger)
}

func openFallStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fall.Store, func(), error) {
	if cfg.PostgresHost != "" {
		pg := postgres.NewClient(cfg, logger)
		if err := pg.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := fall.NewPostgresStore(pg, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pg.Disconnect()
			return nil, nil, err
		}
		return store, func() { pg.Disconnect() }, nil
	}

	store, err := fall.NewSQLiteStore(cfg.SQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: checker.Mux(),
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
