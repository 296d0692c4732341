package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/saaga0h/sahay-platform/e2e/internal/checker"
	"github.com/saaga0h/sahay-platform/e2e/internal/observer"
	"github.com/saaga0h/sahay-platform/e2e/internal/reporter"
	"github.com/saaga0h/sahay-platform/e2e/internal/scenario"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/postgres"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// Runner plays a scenario against running agents and checks the outcome.
// The MQTT client must already be connected; Redis and Postgres are optional.
type Runner struct {
	mqtt     mqtt.Client
	redis    redis.Client
	postgres postgres.Client
	logger   *slog.Logger

	observer *observer.Observer
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewRunner creates a runner over shared clients
func NewRunner(mqttClient mqtt.Client, redisClient redis.Client, pg postgres.Client, logger *slog.Logger) *Runner {
	return &Runner{
		mqtt:     mqttClient,
		redis:    redisClient,
		postgres: pg,
		logger:   logger,
		observer: observer.New(mqttClient, logger),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// step is either an event to publish or an expectation to check
type step struct {
	at    int
	event *scenario.Event
	exp   *scenario.Expectation
}

// schedule orders events and checks by time; at equal times events go first
func schedule(s *scenario.Scenario) []step {
	steps := make([]step, 0, len(s.Events)+len(s.Expectations))
	for i := range s.Events {
		steps = append(steps, step{at: s.Events[i].Time, event: &s.Events[i]})
	}
	for i := range s.Expectations {
		steps = append(steps, step{at: s.Expectations[i].Time, exp: &s.Expectations[i]})
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].at != steps[j].at {
			return steps[i].at < steps[j].at
		}
		return steps[i].event != nil && steps[j].event == nil
	})
	return steps
}

// Run executes the scenario. A failed expectation is reported in the result;
// an error means the run itself could not complete.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, []reporter.TimelineEvent, error) {
	r.logger.Info("Starting scenario", "name", s.Name, "device", s.Device)

	if err := r.observer.Start(); err != nil {
		return nil, nil, err
	}
	defer r.observer.Stop()

	if s.StartupDelay > 0 {
		r.logger.Info("Waiting for agents", "seconds", s.StartupDelay)
		if err := r.sleep(ctx, time.Duration(s.StartupDelay)*time.Second); err != nil {
			return nil, nil, err
		}
	}

	check := checker.New(s.Device, r.redis, r.postgres)
	result := &scenario.TestResult{Scenario: s, StartTime: r.now()}
	var timeline []reporter.TimelineEvent

	for _, st := range schedule(s) {
		if err := r.waitUntil(ctx, result.StartTime, st.at); err != nil {
			return nil, nil, err
		}
		elapsed := r.now().Sub(result.StartTime).Seconds()

		if st.event != nil {
			if err := r.publish(s.Device, *st.event); err != nil {
				return nil, nil, err
			}
			timeline = append(timeline, reporter.TimelineEvent{
				Elapsed:     elapsed,
				Layer:       string(st.event.Kind),
				Description: st.event.Description,
			})
			continue
		}

		res := check.Check(ctx, *st.exp, r.observer.Messages())
		result.Expectations = append(result.Expectations, scenario.ExpectationResult{
			Layer:       st.exp.Layer,
			Expectation: *st.exp,
			Passed:      res.Passed,
			Reason:      res.Reason,
			Actual:      res.Actual,
		})
		if res.Passed {
			result.PassedCount++
			r.logger.Info("Expectation passed", "layer", st.exp.Layer, "target", st.exp.Target())
		} else {
			result.FailedCount++
			r.logger.Warn("Expectation failed", "layer", st.exp.Layer, "target", st.exp.Target(), "reason", res.Reason)
		}
		timeline = append(timeline, reporter.TimelineEvent{
			Elapsed:     elapsed,
			Layer:       st.exp.Layer,
			Description: st.exp.Target(),
			IsCheck:     true,
			Success:     res.Passed,
		})
	}

	result.EndTime = r.now()
	result.Passed = result.FailedCount == 0
	return result, timeline, nil
}

func (r *Runner) publish(device string, e scenario.Event) error {
	topic, err := e.ResolveTopic(device)
	if err != nil {
		return err
	}
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("event %q: %w", e.Description, err)
	}

	if err := r.mqtt.Publish(topic, 1, e.Retained, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	r.logger.Info("Published event", "topic", topic, "kind", e.Kind, "description", e.Description)
	return nil
}

// encodePayload sends strings verbatim and everything else as JSON
func encodePayload(v interface{}) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(p), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		return data, nil
	}
}

// SaveCapture writes the MQTT traffic seen during the last run
func (r *Runner) SaveCapture(path string) error {
	return r.observer.SaveCapture(path)
}
