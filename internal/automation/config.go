package automation

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the flow document version this package understands
const SchemaVersion = 1

// ErrFlowNotFound is returned when no config exists for a platform
var ErrFlowNotFound = errors.New("flow config not found")

//go:embed defaults.yaml
var defaultFlows []byte

// Document is the on-disk flow configuration. JSON documents parse too.
type Document struct {
	SchemaVersion int         `yaml:"schemaVersion" json:"schemaVersion"`
	Configs       []ConfigDoc `yaml:"configs" json:"configs"`
}

// ConfigDoc is one platform entry in a Document
type ConfigDoc struct {
	PlatformID  string    `yaml:"platformId" json:"platformId"`
	Version     int       `yaml:"version" json:"version"`
	AppName     string    `yaml:"appName" json:"appName"`
	PackageName string    `yaml:"packageName" json:"packageName"`
	Steps       []StepDoc `yaml:"steps" json:"steps"`
}

// StepDoc is the flat on-disk form of a FlowStep, discriminated by Type
type StepDoc struct {
	Type        string          `yaml:"type" json:"type"`
	Name        string          `yaml:"name" json:"name"`
	TimeoutMs   int             `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Selector    *NodeSelector   `yaml:"selector,omitempty" json:"selector,omitempty"`
	TextKey     string          `yaml:"textKey,omitempty" json:"textKey,omitempty"`
	Action      string          `yaml:"action,omitempty" json:"action,omitempty"`
	Direction   ScrollDirection `yaml:"direction,omitempty" json:"direction,omitempty"`
	DurationMs  int             `yaml:"durationMs,omitempty" json:"durationMs,omitempty"`
	Message     string          `yaml:"message,omitempty" json:"message,omitempty"`
	Reason      string          `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// ParseDocument decodes and validates a flow document
func ParseDocument(data []byte) (map[string]UiFlowConfig, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flow document: %w", err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", doc.SchemaVersion)
	}
	if len(doc.Configs) == 0 {
		return nil, errors.New("flow document has no configs")
	}

	out := make(map[string]UiFlowConfig, len(doc.Configs))
	for i, cd := range doc.Configs {
		cfg, err := cd.build()
		if err != nil {
			return nil, fmt.Errorf("config %d: %w", i, err)
		}
		key := strings.ToLower(cfg.PlatformID)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate platform %q", cfg.PlatformID)
		}
		out[key] = cfg
	}
	return out, nil
}

func (cd ConfigDoc) build() (UiFlowConfig, error) {
	if cd.PlatformID == "" {
		return UiFlowConfig{}, errors.New("platformId is required")
	}
	if cd.PackageName == "" {
		return UiFlowConfig{}, fmt.Errorf("%s: packageName is required", cd.PlatformID)
	}
	if len(cd.Steps) == 0 {
		return UiFlowConfig{}, fmt.Errorf("%s: at least one step is required", cd.PlatformID)
	}

	steps := make([]FlowStep, 0, len(cd.Steps))
	for i, sd := range cd.Steps {
		step, err := sd.build()
		if err != nil {
			return UiFlowConfig{}, fmt.Errorf("%s step %d: %w", cd.PlatformID, i, err)
		}
		steps = append(steps, step)
	}
	return NewUiFlowConfig(cd.PlatformID, cd.Version, cd.AppName, cd.PackageName, steps), nil
}

func (sd StepDoc) build() (FlowStep, error) {
	if sd.Name == "" {
		return nil, errors.New("name is required")
	}
	if sd.TimeoutMs < 0 {
		return nil, errors.New("timeoutMs cannot be negative")
	}
	base := StepBase{Name: sd.Name, TimeoutMs: sd.TimeoutMs, Description: sd.Description}

	selector := func() (NodeSelector, error) {
		if sd.Selector == nil {
			return NodeSelector{}, fmt.Errorf("%s requires a selector", sd.Type)
		}
		return *sd.Selector, nil
	}

	switch strings.ToLower(sd.Type) {
	case "wait_for_node":
		sel, err := selector()
		if err != nil {
			return nil, err
		}
		return WaitForNode{StepBase: base, Selector: sel}, nil
	case "click_node":
		sel, err := selector()
		if err != nil {
			return nil, err
		}
		return ClickNode{StepBase: base, Selector: sel}, nil
	case "type_text":
		sel, err := selector()
		if err != nil {
			return nil, err
		}
		if sd.TextKey == "" {
			return nil, errors.New("type_text requires textKey")
		}
		return TypeText{StepBase: base, Selector: sel, TextKey: sd.TextKey}, nil
	case "perform_ime":
		if sd.Action == "" {
			return nil, errors.New("perform_ime requires action")
		}
		return PerformIme{StepBase: base, Action: sd.Action}, nil
	case "click_first_match":
		sel, err := selector()
		if err != nil {
			return nil, err
		}
		return ClickFirstMatch{StepBase: base, Selector: sel}, nil
	case "scroll":
		dir := sd.Direction
		if dir == "" {
			dir = ScrollForward
		}
		if dir != ScrollForward && dir != ScrollBackward {
			return nil, fmt.Errorf("invalid scroll direction %q", dir)
		}
		var sel NodeSelector
		if sd.Selector != nil {
			sel = *sd.Selector
		}
		return Scroll{StepBase: base, Selector: sel, Direction: dir}, nil
	case "delay":
		if sd.DurationMs <= 0 {
			return nil, errors.New("delay requires durationMs > 0")
		}
		return Delay{StepBase: base, Duration: time.Duration(sd.DurationMs) * time.Millisecond}, nil
	case "stop_before_payment":
		return StopBeforePayment{StepBase: base, Message: sd.Message}, nil
	case "stop_for_auth":
		return StopForAuth{StepBase: base, Reason: sd.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown step type %q", sd.Type)
	}
}

// Loader reads the flow document once and caches it. If the document at
// path cannot be loaded, the built-in defaults are used.
type Loader struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	configs map[string]UiFlowConfig
}

// NewLoader creates a loader for path. An empty path means defaults only.
func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Get returns the config for a platform
func (l *Loader) Get(platformID string) (UiFlowConfig, error) {
	configs := l.load()
	cfg, ok := configs[strings.ToLower(platformID)]
	if !ok {
		return UiFlowConfig{}, fmt.Errorf("%w: %s", ErrFlowNotFound, platformID)
	}
	return cfg, nil
}

// Platforms lists the known platform ids, sorted
func (l *Loader) Platforms() []string {
	configs := l.load()
	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload drops the cache; the next Get reads the document again
func (l *Loader) Reload() {
	l.mu.Lock()
	l.configs = nil
	l.mu.Unlock()
}

func (l *Loader) load() map[string]UiFlowConfig {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.configs != nil {
		return l.configs
	}

	if l.path != "" {
		configs, err := l.readFile()
		if err == nil {
			l.logger.Info("Loaded flow configs", "path", l.path, "platforms", len(configs))
			l.configs = configs
			return configs
		}
		l.logger.Warn("Failed to load flow configs, using defaults", "path", l.path, "error", err)
	}

	configs, err := ParseDocument(defaultFlows)
	if err != nil {
		// Embedded document is covered by tests
		l.logger.Error("Built-in flow configs are invalid", "error", err)
		configs = map[string]UiFlowConfig{}
	}
	l.configs = configs
	return configs
}

func (l *Loader) readFile() (map[string]UiFlowConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow document: %w", err)
	}
	return ParseDocument(data)
}
