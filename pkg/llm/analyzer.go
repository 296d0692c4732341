package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Analyzer is a generic interface for domain-specific LLM analysis
type Analyzer[TInput any, TOutput any] interface {
	// BuildPrompt creates the LLM prompt from input data
	BuildPrompt(input TInput) string

	// ParseResponse extracts structured output from LLM response
	ParseResponse(resp *GenerateResponse) (TOutput, error)

	// Validate checks if the output meets domain constraints
	Validate(output TOutput) error
}

// Analyze builds the prompt, calls the model, parses and validates the answer.
// metrics may be nil.
func Analyze[TInput any, TOutput any](
	ctx context.Context,
	client Client,
	analyzer Analyzer[TInput, TOutput],
	model string,
	input TInput,
	metrics *MetricsCollector,
	logger *slog.Logger,
) (TOutput, error) {
	var zero TOutput

	prompt := analyzer.BuildPrompt(input)
	logger.Debug("Building LLM prompt", "prompt_length", len(prompt))

	resp, err := client.Generate(ctx, DefaultGenerateRequest(model, prompt))
	if err != nil {
		metrics.RecordError()
		return zero, fmt.Errorf("LLM generate failed: %w", err)
	}
	metrics.Record(resp)

	output, err := analyzer.ParseResponse(resp)
	if err != nil {
		metrics.RecordError()
		logger.Warn("Failed to parse LLM response", "response", resp.Response, "error", err)
		return zero, fmt.Errorf("parse response failed: %w", err)
	}

	if err := analyzer.Validate(output); err != nil {
		metrics.RecordError()
		return zero, fmt.Errorf("validation failed: %w", err)
	}

	logger.Debug("LLM analysis complete",
		"eval_count", resp.EvalCount,
		"duration_ms", resp.TotalDuration/1_000_000)

	return output, nil
}
