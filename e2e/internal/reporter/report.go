package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/saaga0h/sahay-platform/e2e/internal/scenario"
)

// TimelineEvent is one line of the run timeline
type TimelineEvent struct {
	Elapsed     float64
	Layer       string
	Description string
	IsCheck     bool
	Success     bool // only meaningful for checks
}

// GenerateTimeline renders a run as a plain-text report
func GenerateTimeline(result *scenario.TestResult, events []TimelineEvent) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scenario: %s\n", result.Scenario.Name)
	fmt.Fprintf(&sb, "Device:   %s\n", result.Scenario.Device)
	fmt.Fprintf(&sb, "Duration: %s\n\n", formatDuration(result.EndTime.Sub(result.StartTime)))

	for _, e := range events {
		mark := "->"
		if e.IsCheck {
			mark = "FAIL"
			if e.Success {
				mark = "ok"
			}
		}
		fmt.Fprintf(&sb, "[%7.2fs] %-4s %-12s %s\n", e.Elapsed, mark, e.Layer, e.Description)
	}

	byLayer := make(map[string][]scenario.ExpectationResult)
	for _, r := range result.Expectations {
		byLayer[r.Layer] = append(byLayer[r.Layer], r)
	}
	layers := make([]string, 0, len(byLayer))
	for l := range byLayer {
		layers = append(layers, l)
	}
	sort.Strings(layers)

	sb.WriteString("\nExpectations\n")
	for _, layer := range layers {
		fmt.Fprintf(&sb, "  %s\n", layer)
		for _, r := range byLayer[layer] {
			if r.Passed {
				fmt.Fprintf(&sb, "    ok   %s\n", r.Expectation.Target())
			} else {
				fmt.Fprintf(&sb, "    FAIL %s: %s\n", r.Expectation.Target(), r.Reason)
			}
		}
	}

	status := "PASSED"
	if result.FailedCount > 0 {
		status = fmt.Sprintf("FAILED (%d)", result.FailedCount)
	}
	fmt.Fprintf(&sb, "\nPassed: %d  Failed: %d  Status: %s\n", result.PassedCount, result.FailedCount, status)

	return sb.String()
}

// SaveTimeline writes a rendered timeline, creating parent directories
func SaveTimeline(content, path string) error {
	return writeFile(path, []byte(content))
}

// SaveSummary writes the result as indented JSON
func SaveSummary(result *scenario.TestResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%dm %.1fs", minutes, (d - time.Duration(minutes)*time.Minute).Seconds())
}
