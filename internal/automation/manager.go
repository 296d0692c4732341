package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoRetry means there is no failed job to retry
var ErrNoRetry = errors.New("no failed flow to retry")

// JobStatus is the observable state of the current job
type JobStatus struct {
	JobID       string    `json:"jobId"`
	PlatformID  string    `json:"platformId"`
	Query       string    `json:"query"`
	StepIndex   int       `json:"stepIndex"`
	Total       int       `json:"total"`
	StepName    string    `json:"stepName,omitempty"`
	Description string    `json:"description,omitempty"`
	State       StepState `json:"state"`
	Done        bool      `json:"done"`
	Result      string    `json:"result,omitempty"`
	Message     string    `json:"message,omitempty"`
	CanRetry    bool      `json:"canRetry"`
	Timestamp   time.Time `json:"timestamp"`
}

// Job is one flow execution
type Job struct {
	ID         string
	PlatformID string
	Query      string

	cfg    UiFlowConfig
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Wait blocks until the job has finished and returns its result
func (j *Job) Wait() Result {
	<-j.done
	return j.result
}

// Done is closed when the job finishes
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Manager owns the single in-flight automation job. Starting a job cancels
// and waits out the previous one so two flows never drive the UI at once.
type Manager struct {
	engine *Engine
	loader *Loader
	logger *slog.Logger

	launchMu sync.Mutex

	mu      sync.Mutex
	current *Job
	last    *Job
	status  JobStatus

	updates chan JobStatus
}

// NewManager creates a manager
func NewManager(engine *Engine, loader *Loader, logger *slog.Logger) *Manager {
	return &Manager{
		engine:  engine,
		loader:  loader,
		logger:  logger,
		updates: make(chan JobStatus, 1),
	}
}

// Updates delivers status changes. Only the most recent undelivered status
// is kept.
func (m *Manager) Updates() <-chan JobStatus {
	return m.updates
}

// Start looks up the platform flow and runs it for query
func (m *Manager) Start(ctx context.Context, platformID, query string) (*Job, error) {
	cfg, err := m.loader.Get(platformID)
	if err != nil {
		return nil, err
	}
	return m.launch(ctx, cfg, query, func(jobCtx context.Context, observer Observer) Result {
		return m.engine.ExecuteFlow(jobCtx, cfg, query, observer)
	}), nil
}

// Retry reruns the last failed job from the step it failed at
func (m *Manager) Retry(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()

	if last == nil {
		return nil, ErrNoRetry
	}
	failed, ok := last.result.(Failed)
	if !ok {
		return nil, ErrNoRetry
	}

	from := failed.FailedAtStep
	return m.launch(ctx, last.cfg, last.Query, func(jobCtx context.Context, observer Observer) Result {
		return m.engine.RetryFromStep(jobCtx, last.cfg, last.Query, from, observer)
	}), nil
}

// Preempt cancels the running job, if any, and waits for it to stop
func (m *Manager) Preempt(reason string) bool {
	m.mu.Lock()
	job := m.current
	m.mu.Unlock()

	if job == nil {
		return false
	}

	m.logger.Info("Preempting automation", "job", job.ID, "reason", reason)
	job.cancel()
	<-job.done
	return true
}

// Current returns the running job or nil
func (m *Manager) Current() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status returns the latest status
func (m *Manager) Status() JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

type runFunc func(ctx context.Context, observer Observer) Result

func (m *Manager) launch(ctx context.Context, cfg UiFlowConfig, query string, run runFunc) *Job {
	m.launchMu.Lock()
	defer m.launchMu.Unlock()

	m.Preempt("superseded")

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:         uuid.New().String(),
		PlatformID: cfg.PlatformID,
		Query:      query,
		cfg:        cfg,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.current = job
	m.mu.Unlock()

	m.publish(JobStatus{
		JobID:      job.ID,
		PlatformID: job.PlatformID,
		Query:      query,
		Total:      cfg.StepCount(),
		State:      StepRunning,
		Timestamp:  time.Now(),
	})

	go func() {
		defer cancel()

		observer := func(ev StatusEvent) {
			m.publish(JobStatus{
				JobID:       job.ID,
				PlatformID:  job.PlatformID,
				Query:       query,
				StepIndex:   ev.StepIndex,
				Total:       ev.Total,
				StepName:    ev.StepName,
				Description: ev.Description,
				State:       ev.State,
				Timestamp:   time.Now(),
			})
		}

		result := run(jobCtx, observer)
		job.result = result

		final := m.Status()
		final.JobID = job.ID
		final.PlatformID = job.PlatformID
		final.Query = query
		final.Done = true
		final.Result = ResultKind(result)
		final.Message = resultMessage(result)
		_, final.CanRetry = result.(Failed)
		final.Timestamp = time.Now()

		m.mu.Lock()
		if m.current == job {
			m.current = nil
		}
		m.last = job
		m.mu.Unlock()

		m.publish(final)
		m.logger.Info("Automation finished", "job", job.ID, "platform", job.PlatformID, "result", result.String())
		close(job.done)
	}()

	return job
}

func (m *Manager) publish(status JobStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- status:
	default:
	}
}

func resultMessage(r Result) string {
	switch v := r.(type) {
	case Completed:
		return "Done"
	case Cancelled:
		return "Stopped"
	case StoppedAtPayment:
		return v.Message
	case StoppedForAuth:
		return v.Reason
	case Failed:
		if v.StepName == "" {
			return v.Reason
		}
		return fmt.Sprintf("Could not finish %s: %s", v.StepName, v.Reason)
	default:
		return ""
	}
}
