package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// probeTimeout bounds each dependency check in the detailed handler
const probeTimeout = 500 * time.Millisecond

// Probe reports whether a dependency or subsystem is usable
type Probe func(ctx context.Context) error

// Checker provides health check functionality for agents
type Checker struct {
	mqtt   mqtt.Client
	redis  redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	probes map[string]Probe
}

// NewChecker creates a new health checker. Either client may be nil when
// the agent does not use it.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:   mqttClient,
		redis:  redisClient,
		logger: logger,
		probes: make(map[string]Probe),
	}
}

// AddProbe registers an extra named check for the detailed endpoint
func (h *Checker) AddProbe(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// HandlerFunc returns 200 while the process is alive, without touching
// dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc checks MQTT, pings Redis and runs registered probes
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := h.Check(r.Context())

		status := "healthy"
		statusCode := http.StatusOK
		for _, s := range services {
			if s != "connected" && s != "ok" {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
				break
			}
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

// Check returns a status string per dependency
func (h *Checker) Check(ctx context.Context) map[string]string {
	services := make(map[string]string)

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			services["mqtt"] = "connected"
		} else {
			services["mqtt"] = "disconnected"
		}
	}

	if h.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		if err := h.redis.Ping(pingCtx); err != nil {
			services["redis"] = "disconnected"
		} else {
			services["redis"] = "connected"
		}
		cancel()
	}

	h.mu.Lock()
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(h.probes))
	for k, v := range h.probes {
		probes[k] = v
	}
	h.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		if err := probes[name](probeCtx); err != nil {
			services[name] = "error: " + err.Error()
		} else {
			services[name] = "ok"
		}
		cancel()
	}
	return services
}

// Mux returns a mux serving /health and /health/detailed
func (h *Checker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandlerFunc())
	mux.HandleFunc("/health/detailed", h.DetailedHandlerFunc())
	return mux
}

func (h *Checker) write(w http.ResponseWriter, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
