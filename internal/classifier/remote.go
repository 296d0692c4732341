package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saaga0h/sahay-platform/pkg/llm"
)

// llmAnswer is the JSON object the model is asked to produce
type llmAnswer struct {
	Trigger    bool `json:"trigger"`
	Confidence int  `json:"confidence"`
}

// emergencyAnalyzer adapts utterance classification to llm.Analyze
type emergencyAnalyzer struct{}

func (emergencyAnalyzer) BuildPrompt(text string) string {
	return fmt.Sprintf(`You are a safety monitor for an elderly person living alone.
Decide whether the following spoken sentence indicates the speaker needs emergency help
(a fall, injury, medical distress, danger, or an explicit request for help).
The sentence may be in English, Hindi or a mix of both.

Sentence: %q

Respond ONLY with a JSON object: {"trigger": true|false, "confidence": 0-100}`, strings.TrimSpace(text))
}

func (emergencyAnalyzer) ParseResponse(resp *llm.GenerateResponse) (Result, error) {
	answer, err := llm.ParseJSONResponse[llmAnswer](resp)
	if err != nil {
		return Result{}, err
	}
	return clamp(Result{ShouldTrigger: answer.Trigger, Confidence: answer.Confidence}), nil
}

func (emergencyAnalyzer) Validate(r Result) error {
	if r.ShouldTrigger && r.Confidence == 0 {
		return fmt.Errorf("trigger without confidence")
	}
	return nil
}

// LLMRemote is a Remote backed by the Ollama generate API
type LLMRemote struct {
	client  llm.Client
	model   string
	metrics *llm.MetricsCollector
	logger  *slog.Logger
}

// NewLLMRemote creates a remote classifier. metrics may be nil.
func NewLLMRemote(client llm.Client, model string, metrics *llm.MetricsCollector, logger *slog.Logger) *LLMRemote {
	return &LLMRemote{
		client:  client,
		model:   model,
		metrics: metrics,
		logger:  logger,
	}
}

// Classify asks the model for a verdict
func (r *LLMRemote) Classify(ctx context.Context, text string) (Result, error) {
	return llm.Analyze[string, Result](ctx, r.client, emergencyAnalyzer{}, r.model, text, r.metrics, r.logger)
}
