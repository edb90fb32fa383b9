package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dataflow "google.golang.org/api/dataflow/v1b3"
)

// Result is the outcome of waiting on a job.
type Result int

const (
	// ResultFinished means the job reached a successful terminal state.
	ResultFinished Result = iota
	// ResultFailed means the job reached JOB_STATE_FAILED.
	ResultFailed
	// ResultCancelled means the job was cancelled.
	ResultCancelled
	// ResultTimedOut means the wait budget elapsed before any terminal state.
	ResultTimedOut
)

func (r Result) String() string {
	switch r {
	case ResultFinished:
		return "finished"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	case ResultTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Successful reports whether the job finished cleanly.
func (r Result) Successful() bool { return r == ResultFinished }

// Job states reported by the service.
const (
	StateDone      = "JOB_STATE_DONE"
	StateFailed    = "JOB_STATE_FAILED"
	StateCancelled = "JOB_STATE_CANCELLED"
	StateUpdated   = "JOB_STATE_UPDATED"
	StateDrained   = "JOB_STATE_DRAINED"
	StateRunning   = "JOB_STATE_RUNNING"
)

// JobClient is the narrow surface the operator needs from the Dataflow API.
type JobClient interface {
	GetJob(ctx context.Context, project, region, jobID string) (*dataflow.Job, error)
	CancelJob(ctx context.Context, project, region, jobID string) error
	GetJobMetrics(ctx context.Context, project, region, jobID string) (*dataflow.JobMetrics, error)
}

type restJobClient struct {
	svc *dataflow.Service
}

func (c *restJobClient) GetJob(ctx context.Context, project, region, jobID string) (*dataflow.Job, error) {
	job, err := c.svc.Projects.Locations.Jobs.Get(project, region, jobID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (c *restJobClient) CancelJob(ctx context.Context, project, region, jobID string) error {
	_, err := c.svc.Projects.Locations.Jobs.Update(project, region, jobID, &dataflow.Job{
		RequestedState: StateCancelled,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

func (c *restJobClient) GetJobMetrics(ctx context.Context, project, region, jobID string) (*dataflow.JobMetrics, error) {
	m, err := c.svc.Projects.Locations.Jobs.GetMetrics(project, region, jobID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get job metrics %s: %w", jobID, err)
	}
	return m, nil
}

// WaitConfig bounds a wait on one job.
type WaitConfig struct {
	Project string
	Region  string
	JobID   string
	// Timeout is the maximum wall-clock wait. Expiry yields ResultTimedOut,
	// never an indefinite wait.
	Timeout time.Duration
	// CheckInterval is the polling period (default 30s).
	CheckInterval time.Duration
}

// Operator polls a launched job until it reaches a terminal state or the
// wait budget elapses. It owns the only long blocking point of the harness
// besides data generation.
type Operator struct {
	jobs   JobClient
	logger *slog.Logger
}

// NewOperator creates an operator over the given job client.
func NewOperator(jobs JobClient, logger *slog.Logger) *Operator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operator{jobs: jobs, logger: logger.With("component", "operator")}
}

// WaitUntilDone polls until terminal state or timeout. API errors are
// returned as-is: the harness is fail-fast and does not retry managed
// services.
func (o *Operator) WaitUntilDone(ctx context.Context, cfg WaitConfig) (Result, error) {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	deadline := time.Now().Add(cfg.Timeout)

	for {
		job, err := o.jobs.GetJob(ctx, cfg.Project, cfg.Region, cfg.JobID)
		if err != nil {
			return ResultTimedOut, err
		}
		o.logger.Debug("job state", "job_id", cfg.JobID, "state", job.CurrentState)

		switch job.CurrentState {
		case StateDone, StateUpdated, StateDrained:
			o.logger.Info("job finished", "job_id", cfg.JobID, "state", job.CurrentState)
			return ResultFinished, nil
		case StateFailed:
			o.logger.Warn("job failed", "job_id", cfg.JobID)
			return ResultFailed, nil
		case StateCancelled:
			o.logger.Warn("job cancelled", "job_id", cfg.JobID)
			return ResultCancelled, nil
		}

		if time.Now().Add(interval).After(deadline) {
			o.logger.Warn("wait budget elapsed", "job_id", cfg.JobID, "timeout", cfg.Timeout)
			return ResultTimedOut, nil
		}
		select {
		case <-ctx.Done():
			return ResultTimedOut, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Cancel requests cancellation of a job. Used by cleanup paths to stop jobs
// still running after a timeout.
func (o *Operator) Cancel(ctx context.Context, project, region, jobID string) error {
	o.logger.Info("cancelling job", "job_id", jobID)
	return o.jobs.CancelJob(ctx, project, region, jobID)
}
