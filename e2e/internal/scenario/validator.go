package scenario

import (
	"fmt"
)

// ValidateScenario checks a decoded scenario for missing or conflicting fields
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("scenario description is required")
	}
	if s.StartupDelay < 0 {
		return fmt.Errorf("startup_delay cannot be negative")
	}

	if err := validateEvents(s.Events, s.Device); err != nil {
		return fmt.Errorf("events validation failed: %w", err)
	}
	if err := validateExpectations(s.Expectations); err != nil {
		return fmt.Errorf("expectations validation failed: %w", err)
	}
	return nil
}

func validateEvents(events []Event, device string) error {
	if len(events) == 0 {
		return fmt.Errorf("at least one event is required")
	}

	for i, event := range events {
		if event.Time < 0 {
			return fmt.Errorf("event %d: time cannot be negative", i)
		}
		if event.Description == "" {
			return fmt.Errorf("event %d: description is required", i)
		}
		if _, err := event.ResolveTopic(device); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if event.Topic != "" && event.Kind != KindRaw {
			return fmt.Errorf("event %d: topic is only allowed for raw events", i)
		}
		if event.Payload == nil && event.Kind != KindSOS && event.Kind != KindDismiss {
			return fmt.Errorf("event %d: %s events require payload", i, event.Kind)
		}
	}
	return nil
}

func validateExpectations(exps []Expectation) error {
	if len(exps) == 0 {
		return fmt.Errorf("at least one expectation is required")
	}

	for i, exp := range exps {
		if exp.Time < 0 {
			return fmt.Errorf("expectation %d: time cannot be negative", i)
		}
		if exp.Layer == "" {
			return fmt.Errorf("expectation %d: layer is required", i)
		}

		targets := 0
		for _, set := range []bool{exp.Topic != "", exp.RedisKey != "", exp.PostgresQuery != ""} {
			if set {
				targets++
			}
		}
		if targets != 1 {
			return fmt.Errorf("expectation %d: exactly one of topic, redis_key or postgres_query is required", i)
		}

		switch {
		case exp.Topic != "" && len(exp.Payload) == 0:
			return fmt.Errorf("expectation %d: topic expectations require payload", i)
		case exp.RedisKey != "" && exp.RedisField != "" && exp.Expected == nil:
			return fmt.Errorf("expectation %d: expected is required with redis_field", i)
		case exp.RedisKey != "" && exp.RedisField == "" && len(exp.Payload) == 0:
			return fmt.Errorf("expectation %d: list expectations require payload", i)
		case exp.PostgresQuery != "" && exp.PostgresExpected == nil:
			return fmt.Errorf("expectation %d: postgres_expected is required with postgres_query", i)
		}
	}
	return nil
}
