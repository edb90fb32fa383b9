// Package metrics turns raw pipeline counters into a throughput record and
// exports it to BigQuery. Export is best-effort: a failed export must never
// change a test outcome.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dataflow-loadtest/internal/pipeline"
)

// StageIDs names the two pipeline-internal PCollections the throughput
// numbers are read from. These strings are an external contract of the
// deployed template and are supplied by configuration.
type StageIDs struct {
	Input  string
	Output string
}

// Record is one exported measurement row.
type Record struct {
	Timestamp time.Time `bigquery:"timestamp"`
	TestName  string    `bigquery:"test_name"`
	JobID     string    `bigquery:"job_id"`
	JobName   string    `bigquery:"job_name"`

	ElapsedSeconds float64 `bigquery:"elapsed_seconds"`
	InputElements  float64 `bigquery:"input_elements"`
	OutputElements float64 `bigquery:"output_elements"`

	// Average throughput in elements per second over the whole run.
	InputThroughput  float64 `bigquery:"input_throughput"`
	OutputThroughput float64 `bigquery:"output_throughput"`
}

// Collector reads the named stage counters for a finished job.
type Collector struct {
	jobs   pipeline.JobClient
	stages StageIDs
	logger *slog.Logger
}

// NewCollector creates a collector for the given stage identifiers.
func NewCollector(jobs pipeline.JobClient, stages StageIDs, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{jobs: jobs, stages: stages, logger: logger.With("component", "metrics")}
}

// Collect fetches the job's counters and derives the throughput record.
// elapsed is the harness-measured wall-clock duration of the job.
func (c *Collector) Collect(ctx context.Context, info *pipeline.LaunchInfo, testName string, elapsed time.Duration) (*Record, error) {
	if elapsed <= 0 {
		return nil, fmt.Errorf("elapsed duration must be positive, got %s", elapsed)
	}
	jm, err := c.jobs.GetJobMetrics(ctx, info.Project, info.Region, info.JobID)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for job %s: %w", info.JobID, err)
	}
	counts := pipeline.ElementCounts(jm)

	in, ok := counts[c.stages.Input]
	if !ok {
		return nil, fmt.Errorf("no ElementCount for input stage %q on job %s", c.stages.Input, info.JobID)
	}
	out, ok := counts[c.stages.Output]
	if !ok {
		return nil, fmt.Errorf("no ElementCount for output stage %q on job %s", c.stages.Output, info.JobID)
	}

	seconds := elapsed.Seconds()
	rec := &Record{
		Timestamp:        time.Now().UTC(),
		TestName:         testName,
		JobID:            info.JobID,
		JobName:          info.JobName,
		ElapsedSeconds:   seconds,
		InputElements:    in,
		OutputElements:   out,
		InputThroughput:  in / seconds,
		OutputThroughput: out / seconds,
	}
	c.logger.Info("metrics collected",
		"job_id", info.JobID,
		"input_elements", in, "output_elements", out,
		"input_throughput", rec.InputThroughput, "output_throughput", rec.OutputThroughput)
	return rec, nil
}
