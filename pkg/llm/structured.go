package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse parses the LLM's JSON response into a target type.
// Models occasionally wrap the object in a markdown fence; that is stripped.
func ParseJSONResponse[T any](resp *GenerateResponse) (*T, error) {
	var result T

	raw := strings.TrimSpace(resp.Response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse LLM JSON: %w (response: %s)", err, resp.Response)
	}

	return &result, nil
}
