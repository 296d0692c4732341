package checker

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Match reports whether actual satisfies expected. Expected strings may be
// matchers: "*" accepts any present value, "~pattern~" is a regular
// expression, and ">n", "<n", ">=n", "<=n" compare numerically. Maps match
// when every expected key matches; extra actual keys are ignored. Redis
// values arrive as strings, so a string actual is coerced when the expected
// value is a number or bool.
func Match(actual, expected interface{}) (bool, string) {
	if expected == nil {
		if actual == nil {
			return true, ""
		}
		return false, fmt.Sprintf("expected nil, got %v", actual)
	}
	if actual == nil {
		return false, fmt.Sprintf("expected %v, got nil", expected)
	}

	if s, ok := expected.(string); ok {
		switch {
		case s == "*":
			return true, ""
		case len(s) > 1 && strings.HasPrefix(s, "~") && strings.HasSuffix(s, "~"):
			return matchRegex(actual, s[1:len(s)-1])
		case strings.HasPrefix(s, ">") || strings.HasPrefix(s, "<"):
			return matchComparison(actual, s)
		}
	}

	switch want := expected.(type) {
	case string:
		got, ok := actual.(string)
		if !ok {
			return false, fmt.Sprintf("expected string %q, got %T", want, actual)
		}
		if got != want {
			return false, fmt.Sprintf("expected %q, got %q", want, got)
		}
		return true, ""

	case bool:
		got, ok := actual.(bool)
		if s, isStr := actual.(string); isStr {
			b, err := strconv.ParseBool(s)
			got, ok = b, err == nil
		}
		if !ok {
			return false, fmt.Sprintf("expected bool, got %T", actual)
		}
		if got != want {
			return false, fmt.Sprintf("expected %v, got %v", want, got)
		}
		return true, ""

	case map[string]interface{}:
		return matchMap(actual, want)
	}

	if wantNum, err := toFloat64(expected); err == nil {
		gotNum, err := toFloat64(actual)
		if err != nil {
			return false, fmt.Sprintf("expected number %v, got %T", expected, actual)
		}
		if gotNum != wantNum {
			return false, fmt.Sprintf("expected %v, got %v", expected, actual)
		}
		return true, ""
	}

	if k := reflect.TypeOf(expected).Kind(); k == reflect.Slice || k == reflect.Array {
		return matchSlice(actual, expected)
	}

	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func matchRegex(actual interface{}, pattern string) (bool, string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
	}
	s := fmt.Sprintf("%v", actual)
	if re.MatchString(s) {
		return true, ""
	}
	return false, fmt.Sprintf("value %q does not match ~%s~", s, pattern)
}

func matchComparison(actual interface{}, comparison string) (bool, string) {
	got, err := toFloat64(actual)
	if err != nil {
		return false, fmt.Sprintf("cannot compare non-numeric value %v", actual)
	}

	op := comparison[:1]
	if strings.HasPrefix(comparison, ">=") || strings.HasPrefix(comparison, "<=") {
		op = comparison[:2]
	}
	want, err := strconv.ParseFloat(strings.TrimSpace(comparison[len(op):]), 64)
	if err != nil {
		return false, fmt.Sprintf("invalid comparison %q", comparison)
	}

	var ok bool
	switch op {
	case ">":
		ok = got > want
	case "<":
		ok = got < want
	case ">=":
		ok = got >= want
	case "<=":
		ok = got <= want
	}
	if ok {
		return true, ""
	}
	return false, fmt.Sprintf("expected value %s %v, got %v", op, want, got)
}

func matchMap(actual interface{}, expected map[string]interface{}) (bool, string) {
	got, ok := actual.(map[string]interface{})
	if !ok {
		return false, fmt.Sprintf("expected object, got %T", actual)
	}
	for key, want := range expected {
		v, exists := got[key]
		if !exists {
			return false, fmt.Sprintf("missing key %q", key)
		}
		if ok, reason := Match(v, want); !ok {
			return false, fmt.Sprintf("key %q: %s", key, reason)
		}
	}
	return true, ""
}

func matchSlice(actual, expected interface{}) (bool, string) {
	got := reflect.ValueOf(actual)
	if k := got.Kind(); k != reflect.Slice && k != reflect.Array {
		return false, fmt.Sprintf("expected array, got %T", actual)
	}
	want := reflect.ValueOf(expected)
	if got.Len() != want.Len() {
		return false, fmt.Sprintf("expected array length %d, got %d", want.Len(), got.Len())
	}
	for i := 0; i < want.Len(); i++ {
		if ok, reason := Match(got.Index(i).Interface(), want.Index(i).Interface()); !ok {
			return false, fmt.Sprintf("element %d: %s", i, reason)
		}
	}
	return true, ""
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a numeric type: %T", v)
	}
}
