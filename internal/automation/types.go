// Package automation drives third-party apps through their accessibility
// tree using declarative step lists. Flows always stop before payment.
package automation

import "time"

// NodeSelector is a partially specified query against the UI tree. Fields
// are tried in a fixed precedence order; AlternateSelectors are tried in
// order only when the primary yields nothing.
type NodeSelector struct {
	ResourceID          string         `yaml:"resourceId,omitempty" json:"resourceId,omitempty"`
	Text                string         `yaml:"text,omitempty" json:"text,omitempty"`
	TextContains        string         `yaml:"textContains,omitempty" json:"textContains,omitempty"`
	ContentDescription  string         `yaml:"contentDescription,omitempty" json:"contentDescription,omitempty"`
	DescriptionContains string         `yaml:"descriptionContains,omitempty" json:"descriptionContains,omitempty"`
	ClassName           string         `yaml:"className,omitempty" json:"className,omitempty"`
	UseFirstClickable   bool           `yaml:"useFirstClickable,omitempty" json:"useFirstClickable,omitempty"`
	AlternateSelectors  []NodeSelector `yaml:"alternateSelectors,omitempty" json:"alternateSelectors,omitempty"`
}

// IsZero reports whether the selector (ignoring alternates) has no criteria
func (s NodeSelector) IsZero() bool {
	return s.ResourceID == "" && s.Text == "" && s.TextContains == "" &&
		s.ContentDescription == "" && s.DescriptionContains == "" &&
		s.ClassName == "" && !s.UseFirstClickable
}

// StepBase is carried by every step
type StepBase struct {
	Name        string
	TimeoutMs   int
	Description string
}

// Timeout returns the step timeout, zero meaning none
func (b StepBase) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// FlowStep is one of the step variants below
type FlowStep interface {
	Base() StepBase
	flowStep()
}

// WaitForNode waits until the selector resolves
type WaitForNode struct {
	StepBase
	Selector NodeSelector
}

// ClickNode clicks the resolved node or its nearest clickable ancestor
type ClickNode struct {
	StepBase
	Selector NodeSelector
}

// TextKeyQuery substitutes the user's query
const TextKeyQuery = "query"

// TypeText focuses the field, clears it and enters text. TextKey "query"
// means the user's query; anything else is typed literally.
type TypeText struct {
	StepBase
	Selector NodeSelector
	TextKey  string
}

// PerformIme sends an editor action such as "search" or "done"
type PerformIme struct {
	StepBase
	Action string
}

// ClickFirstMatch clicks the first match in a result list, falling back to
// the first clickable visible node
type ClickFirstMatch struct {
	StepBase
	Selector NodeSelector
}

// ScrollDirection for Scroll steps
type ScrollDirection string

const (
	ScrollForward  ScrollDirection = "forward"
	ScrollBackward ScrollDirection = "backward"
)

// Scroll scrolls the nearest scrollable container
type Scroll struct {
	StepBase
	Selector  NodeSelector
	Direction ScrollDirection
}

// Delay pauses the flow
type Delay struct {
	StepBase
	Duration time.Duration
}

// StopBeforePayment ends the flow before checkout
type StopBeforePayment struct {
	StepBase
	Message string
}

// StopForAuth ends the flow when a login or OTP is required
type StopForAuth struct {
	StepBase
	Reason string
}

func (s WaitForNode) Base() StepBase       { return s.StepBase }
func (s ClickNode) Base() StepBase         { return s.StepBase }
func (s TypeText) Base() StepBase          { return s.StepBase }
func (s PerformIme) Base() StepBase        { return s.StepBase }
func (s ClickFirstMatch) Base() StepBase   { return s.StepBase }
func (s Scroll) Base() StepBase            { return s.StepBase }
func (s Delay) Base() StepBase             { return s.StepBase }
func (s StopBeforePayment) Base() StepBase { return s.StepBase }
func (s StopForAuth) Base() StepBase       { return s.StepBase }

func (WaitForNode) flowStep()       {}
func (ClickNode) flowStep()         {}
func (TypeText) flowStep()          {}
func (PerformIme) flowStep()        {}
func (ClickFirstMatch) flowStep()   {}
func (Scroll) flowStep()            {}
func (Delay) flowStep()             {}
func (StopBeforePayment) flowStep() {}
func (StopForAuth) flowStep()       {}

// UiFlowConfig describes how to drive one app. Steps cannot be changed
// after construction.
type UiFlowConfig struct {
	PlatformID  string
	Version     int
	AppName     string
	PackageName string
	steps       []FlowStep
}

// NewUiFlowConfig copies steps into a new config
func NewUiFlowConfig(platformID string, version int, appName, packageName string, steps []FlowStep) UiFlowConfig {
	return UiFlowConfig{
		PlatformID:  platformID,
		Version:     version,
		AppName:     appName,
		PackageName: packageName,
		steps:       append([]FlowStep(nil), steps...),
	}
}

// Steps returns a copy of the step list
func (c UiFlowConfig) Steps() []FlowStep {
	return append([]FlowStep(nil), c.steps...)
}

// StepCount returns the number of steps
func (c UiFlowConfig) StepCount() int {
	return len(c.steps)
}

// Result is the terminal outcome of a flow run
type Result interface {
	String() string
	result()
}

// Completed means every step ran
type Completed struct{}

// Cancelled means the run was stopped from outside
type Cancelled struct{}

// StoppedAtPayment means the flow reached checkout and handed over to the user
type StoppedAtPayment struct {
	Message string
}

// StoppedForAuth means the app wants a login or OTP
type StoppedForAuth struct {
	Reason string
}

// Failed means a step could not be completed
type Failed struct {
	FailedAtStep int
	StepName     string
	Reason       string
}

func (Completed) String() string          { return "completed" }
func (Cancelled) String() string          { return "cancelled" }
func (r StoppedAtPayment) String() string { return "stopped_at_payment: " + r.Message }
func (r StoppedForAuth) String() string   { return "stopped_for_auth: " + r.Reason }
func (r Failed) String() string           { return "failed at " + r.StepName + ": " + r.Reason }

func (Completed) result()        {}
func (Cancelled) result()        {}
func (StoppedAtPayment) result() {}
func (StoppedForAuth) result()   {}
func (Failed) result()           {}

// ResultKind returns a stable name for a result
func ResultKind(r Result) string {
	switch r.(type) {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case StoppedAtPayment:
		return "stopped_at_payment"
	case StoppedForAuth:
		return "stopped_for_auth"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
