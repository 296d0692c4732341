package llm

import (
	"log/slog"
	"sync"
)

// Metrics tracks LLM usage statistics
type Metrics struct {
	TotalRequests    int64
	TotalTokens      int64
	TotalDurationMs  int64
	AverageLatencyMs float64
	ErrorCount       int64
}

// MetricsCollector collects LLM usage metrics. A nil collector is a no-op.
type MetricsCollector struct {
	mu      sync.Mutex
	metrics Metrics
	logger  *slog.Logger
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger: logger,
	}
}

// Record records metrics from a response
func (mc *MetricsCollector) Record(resp *GenerateResponse) {
	if mc == nil || resp == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics.TotalRequests++
	mc.metrics.TotalTokens += int64(resp.EvalCount + resp.PromptEvalCount)
	mc.metrics.TotalDurationMs += resp.TotalDuration / 1_000_000
	mc.metrics.AverageLatencyMs = float64(mc.metrics.TotalDurationMs) / float64(mc.metrics.TotalRequests)
}

// RecordError records an error
func (mc *MetricsCollector) RecordError() {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	mc.metrics.ErrorCount++
	mc.mu.Unlock()
}

// GetMetrics returns current metrics
func (mc *MetricsCollector) GetMetrics() Metrics {
	if mc == nil {
		return Metrics{}
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.metrics
}

// LogMetrics logs current metrics
func (mc *MetricsCollector) LogMetrics() {
	if mc == nil {
		return
	}
	m := mc.GetMetrics()
	mc.logger.Info("LLM metrics",
		"total_requests", m.TotalRequests,
		"total_tokens", m.TotalTokens,
		"avg_latency_ms", m.AverageLatencyMs,
		"error_count", m.ErrorCount)
}
