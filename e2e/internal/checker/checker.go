package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saaga0h/sahay-platform/e2e/internal/observer"
	"github.com/saaga0h/sahay-platform/e2e/internal/scenario"
	"github.com/saaga0h/sahay-platform/pkg/postgres"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// Result of one check: whether it passed, why not, and what was observed
type Result struct {
	Passed bool
	Reason string
	Actual interface{}
}

func pass(actual interface{}) Result { return Result{Passed: true, Actual: actual} }

func fail(actual interface{}, format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...), Actual: actual}
}

// Checker evaluates expectations against captured MQTT traffic, Redis and
// Postgres. Redis and Postgres may be nil when a scenario does not use them.
type Checker struct {
	device   string
	redis    redis.Client
	postgres postgres.Client
}

// New creates a checker for one device
func New(device string, redisClient redis.Client, pg postgres.Client) *Checker {
	return &Checker{device: device, redis: redisClient, postgres: pg}
}

// Check routes an expectation to the matching backend
func (c *Checker) Check(ctx context.Context, exp scenario.Expectation, messages []observer.CapturedMessage) Result {
	switch {
	case exp.Topic != "":
		return c.checkMQTT(exp, messages)
	case exp.RedisKey != "":
		return c.checkRedis(ctx, exp)
	case exp.PostgresQuery != "":
		return c.checkPostgres(ctx, exp)
	default:
		return fail(nil, "expectation has no target")
	}
}

// checkMQTT matches the latest message on the topic
func (c *Checker) checkMQTT(exp scenario.Expectation, messages []observer.CapturedMessage) Result {
	topic := scenario.Expand(exp.Topic, c.device)

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Topic != topic {
			continue
		}
		payload := messages[i].Payload
		if ok, reason := Match(payload, exp.Payload); !ok {
			return fail(payload, "%s", reason)
		}
		return pass(payload)
	}
	return fail(nil, "no messages on topic %q", topic)
}

func (c *Checker) checkRedis(ctx context.Context, exp scenario.Expectation) Result {
	if c.redis == nil {
		return fail(nil, "redis not configured")
	}
	key := scenario.ResolveRedisKey(exp.RedisKey, c.device)

	if exp.RedisField != "" {
		value, err := c.redis.HGet(ctx, key, exp.RedisField)
		if errors.Is(err, redis.ErrNotFound) {
			return fail(nil, "field %q not found in %s", exp.RedisField, key)
		}
		if err != nil {
			return fail(nil, "redis error: %v", err)
		}
		if ok, reason := Match(value, exp.Expected); !ok {
			return fail(value, "%s", reason)
		}
		return pass(value)
	}

	entries, err := c.redis.LRange(ctx, key, 0, 0)
	if err != nil {
		return fail(nil, "redis error: %v", err)
	}
	if len(entries) == 0 {
		return fail(nil, "list %s is empty", key)
	}

	var entry interface{}
	if err := json.Unmarshal([]byte(entries[0]), &entry); err != nil {
		return fail(entries[0], "newest entry is not JSON: %v", err)
	}
	if ok, reason := Match(entry, exp.Payload); !ok {
		return fail(entry, "%s", reason)
	}
	return pass(entry)
}

// checkPostgres matches the first column of the first row
func (c *Checker) checkPostgres(ctx context.Context, exp scenario.Expectation) Result {
	if c.postgres == nil {
		return fail(nil, "postgres not configured")
	}

	rows, err := c.postgres.Query(ctx, exp.PostgresQuery)
	if err != nil {
		return fail(nil, "query failed: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fail(nil, "query failed: %v", err)
		}
		return fail(nil, "query returned no rows")
	}

	var value interface{}
	if err := rows.Scan(&value); err != nil {
		return fail(nil, "scan failed: %v", err)
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	if ok, reason := Match(value, exp.PostgresExpected); !ok {
		return fail(value, "%s", reason)
	}
	return pass(value)
}
