package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(d Driver) *Engine {
	e := NewEngine(d, testLogger())
	e.sleep = noSleep
	return e
}

type eventLog struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (l *eventLog) observe(ev StatusEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []StatusEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StatusEvent(nil), l.events...)
}

func orderFlow() UiFlowConfig {
	return NewUiFlowConfig("test", 1, "Test", "com.example.food", []FlowStep{
		WaitForNode{StepBase: StepBase{Name: "wait_home"}, Selector: NodeSelector{ResourceID: "app:id/search"}},
		TypeText{StepBase: StepBase{Name: "enter_query", Description: "Typing"}, Selector: NodeSelector{ClassName: "android.widget.EditText"}, TextKey: TextKeyQuery},
		PerformIme{StepBase: StepBase{Name: "submit"}, Action: "search"},
		ClickNode{StepBase: StepBase{Name: "pick"}, Selector: NodeSelector{TextContains: "Palace"}},
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
		StopBeforePayment{StepBase: StepBase{Name: "handoff"}, Message: "Cart ready"},
		ClickNode{StepBase: StepBase{Name: "pay"}, Selector: NodeSelector{Text: "Pay"}},
	})
}

func TestExecuteFlowStopsBeforePayment(t *testing.T) {
	d := newFakeDriver(sampleTree())
	e := newTestEngine(d)
	log := &eventLog{}

	result := e.ExecuteFlow(context.Background(), orderFlow(), "pizza", log.observe)

	assert.Equal(t, StoppedAtPayment{Message: "Cart ready"}, result)
	assert.Equal(t, []string{
		"focus:search", "clear:search", "set:search=pizza",
		"ime:search",
		"click:row",
		"click:add",
	}, d.Actions())
	assert.Equal(t, []string{"com.example.food"}, d.launched)

	events := log.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 5, last.StepIndex)
	assert.Equal(t, StepStopped, last.State)
	for _, ev := range events {
		assert.Equal(t, 7, ev.Total)
		assert.NotEqual(t, "pay", ev.StepName)
	}
}

func TestExecuteFlowEmitsBeforeAndAfterEachStep(t *testing.T) {
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		PerformIme{StepBase: StepBase{Name: "a", Description: "first"}, Action: "done"},
		Delay{StepBase: StepBase{Name: "b"}, Duration: time.Millisecond},
	})
	log := &eventLog{}

	result := newTestEngine(newFakeDriver(sampleTree())).ExecuteFlow(context.Background(), cfg, "", log.observe)

	assert.Equal(t, Completed{}, result)
	assert.Equal(t, []StatusEvent{
		{StepIndex: 0, Total: 2, StepName: "a", Description: "first", State: StepRunning},
		{StepIndex: 0, Total: 2, StepName: "a", Description: "first", State: StepSucceeded},
		{StepIndex: 1, Total: 2, StepName: "b", State: StepRunning},
		{StepIndex: 1, Total: 2, StepName: "b", State: StepSucceeded},
	}, log.all())
}

func TestExecuteFlowStopForAuth(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		StopForAuth{StepBase: StepBase{Name: "login"}, Reason: "OTP required"},
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Equal(t, StoppedForAuth{Reason: "OTP required"}, result)
	assert.Empty(t, d.Actions())
}

func TestExecuteFlowFailsWhenSelectorNeverResolves(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
		ClickNode{StepBase: StepBase{Name: "checkout"}, Selector: NodeSelector{Text: "Checkout"}},
		ClickNode{StepBase: StepBase{Name: "after"}, Selector: NodeSelector{Text: "ADD"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	failed, ok := result.(Failed)
	require.True(t, ok, "got %v", result)
	assert.Equal(t, 1, failed.FailedAtStep)
	assert.Equal(t, "checkout", failed.StepName)
	assert.Contains(t, failed.Reason, ErrNodeNotFound.Error())
	assert.Equal(t, []string{"click:add"}, d.Actions())
	// one snapshot for the first step, then the full budget
	assert.Equal(t, 1+ActAttempts, d.Snapshots())
}

func TestWaitForNodePollsLonger(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		WaitForNode{StepBase: StepBase{Name: "wait"}, Selector: NodeSelector{Text: "never"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Equal(t, "failed", ResultKind(result))
	assert.Equal(t, WaitAttempts, d.Snapshots())
}

func TestLocateRetriesUntilNodeAppears(t *testing.T) {
	empty := &TreeNode{NodeID: "root", IsVisible: true}
	d := newFakeDriver(empty, empty, sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Equal(t, Completed{}, result)
	assert.Equal(t, 3, d.Snapshots())
	assert.Equal(t, []string{"click:add"}, d.Actions())
}

func TestClickErrorsAreRetried(t *testing.T) {
	d := newFakeDriver(sampleTree())
	d.clickErr = ErrActionFailed
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	failed, ok := result.(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Reason, ErrActionFailed.Error())
	assert.Len(t, d.Actions(), ActAttempts)
}

func TestClickFirstMatchFallsBackToFirstClickable(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickFirstMatch{StepBase: StepBase{Name: "first"}, Selector: NodeSelector{ResourceID: "app:id/result"}},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Equal(t, Completed{}, result)
	assert.Equal(t, []string{"click:row"}, d.Actions())
}

func TestScrollUsesScrollableContainer(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		Scroll{StepBase: StepBase{Name: "down"}, Direction: ScrollForward},
		Scroll{StepBase: StepBase{Name: "up"}, Selector: NodeSelector{Text: "Margherita"}, Direction: ScrollBackward},
	})

	result := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Equal(t, Completed{}, result)
	assert.Equal(t, []string{"scroll:list:forward", "scroll:list:backward"}, d.Actions())
}

func TestTypeTextLiteralKey(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		TypeText{StepBase: StepBase{Name: "type"}, Selector: NodeSelector{ResourceID: "app:id/search"}, TextKey: "560001"},
	})

	newTestEngine(d).ExecuteFlow(context.Background(), cfg, "pizza", nil)

	assert.Equal(t, []string{"focus:search", "clear:search", "set:search=560001"}, d.Actions())
}

func TestStepTimeoutIsFailure(t *testing.T) {
	d := newFakeDriver(sampleTree())
	e := NewEngine(d, testLogger())
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		Delay{StepBase: StepBase{Name: "slow", TimeoutMs: 20}, Duration: time.Second},
		PerformIme{StepBase: StepBase{Name: "next"}, Action: "done"},
	})

	start := time.Now()
	result := e.ExecuteFlow(context.Background(), cfg, "", nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	failed, ok := result.(Failed)
	require.True(t, ok, "got %v", result)
	assert.Equal(t, 0, failed.FailedAtStep)
	assert.Equal(t, "step timed out after 20ms", failed.Reason)
	assert.Empty(t, d.Actions())
}

func TestCancelAbortsMidStep(t *testing.T) {
	d := newFakeDriver(sampleTree())
	d.blockOn = "add"
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
		PerformIme{StepBase: StepBase{Name: "next"}, Action: "done"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	log := &eventLog{}
	done := make(chan Result, 1)
	go func() { done <- newTestEngine(d).ExecuteFlow(ctx, cfg, "", log.observe) }()

	<-d.blocked
	cancel()

	select {
	case result := <-done:
		assert.Equal(t, Cancelled{}, result)
	case <-time.After(2 * time.Second):
		t.Fatal("flow did not stop after cancel")
	}
	assert.Equal(t, []string{"click:add"}, d.Actions())
	events := log.all()
	assert.Equal(t, StepCancelled, events[len(events)-1].State)
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestEngine(newFakeDriver(sampleTree())).ExecuteFlow(ctx, orderFlow(), "pizza", nil)
	assert.Equal(t, Cancelled{}, result)
}

func TestRetryFromStepKeepsOriginalIndexes(t *testing.T) {
	d := newFakeDriver(sampleTree())
	cfg := orderFlow()
	log := &eventLog{}

	result := newTestEngine(d).RetryFromStep(context.Background(), cfg, "pizza", 3, log.observe)

	assert.Equal(t, StoppedAtPayment{Message: "Cart ready"}, result)
	assert.Equal(t, []string{"click:row", "click:add"}, d.Actions())
	events := log.all()
	assert.Equal(t, 3, events[0].StepIndex)
	assert.Equal(t, "pick", events[0].StepName)
	assert.Equal(t, 7, cfg.StepCount())
	assert.Empty(t, d.launched)
}

func TestRetryFromStepOutOfRange(t *testing.T) {
	e := newTestEngine(newFakeDriver(sampleTree()))
	for _, from := range []int{-1, 7, 100} {
		result := e.RetryFromStep(context.Background(), orderFlow(), "", from, nil)
		assert.Equal(t, "failed", ResultKind(result), "from %d", from)
	}
}

func TestSnapshotErrorsFailStep(t *testing.T) {
	d := newFakeDriver(sampleTree())
	d.snapshotE = errors.New("service disconnected")
	cfg := NewUiFlowConfig("test", 1, "Test", "", []FlowStep{
		ClickNode{StepBase: StepBase{Name: "add"}, Selector: NodeSelector{Text: "ADD"}},
	})

	failed, ok := newTestEngine(d).ExecuteFlow(context.Background(), cfg, "", nil).(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Reason, "service disconnected")
}

func TestConfigStepsAreImmutable(t *testing.T) {
	cfg := orderFlow()
	steps := cfg.Steps()
	steps[0] = StopForAuth{StepBase: StepBase{Name: "tampered"}}

	assert.Equal(t, "wait_home", cfg.Steps()[0].Base().Name)
}

// No step after a terminal step ever reaches the driver.
func TestPropertyNothingRunsPastTerminalStep(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("terminal step halts the flow", prop.ForAll(
		func(before, after, stopAt int, forAuth bool) bool {
			var steps []FlowStep
			for i := 0; i < before; i++ {
				steps = append(steps, PerformIme{StepBase: StepBase{Name: fmt.Sprintf("pre%d", i)}, Action: "before"})
			}
			var stop FlowStep = StopBeforePayment{StepBase: StepBase{Name: "stop"}}
			if forAuth {
				stop = StopForAuth{StepBase: StepBase{Name: "stop"}}
			}
			steps = append(steps, stop)
			for i := 0; i < after; i++ {
				steps = append(steps, PerformIme{StepBase: StepBase{Name: fmt.Sprintf("post%d", i)}, Action: "after"})
			}

			d := newFakeDriver(sampleTree())
			e := newTestEngine(d)
			cfg := NewUiFlowConfig("p", 1, "P", "", steps)

			from := stopAt % (before + 1)
			result := e.RetryFromStep(context.Background(), cfg, "", from, nil)

			for _, a := range d.Actions() {
				if a == "ime:after" {
					return false
				}
			}
			kind := ResultKind(result)
			return kind == "stopped_at_payment" || kind == "stopped_for_auth"
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 6),
		gen.IntRange(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
