// Package loadtest wires the load-test harness and runs scenarios against a
// deployed pipeline template. The flow is strictly sequential: any failure
// aborts the remaining steps and the caller's deferred cleanup runs.
package loadtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigtable"

	"dataflow-loadtest/internal/metrics"
	"dataflow-loadtest/internal/pipeline"
)

// TableProvisioner is the tablestore surface a scenario needs.
type TableProvisioner interface {
	InstanceID() string
	CreateTable(ctx context.Context, tableID string, columnFamilies []string) error
	SampleRows(ctx context.Context, tableID string, limit int64) ([]bigtable.Row, error)
}

// DataGenerator produces the synthetic input backlog.
type DataGenerator interface {
	Execute(ctx context.Context, timeout time.Duration) error
}

// JobLauncher submits the template under test.
type JobLauncher interface {
	Launch(ctx context.Context, project, region string, cfg *pipeline.LaunchConfig) (*pipeline.LaunchInfo, error)
}

// JobWaiter blocks until a job is terminal and can cancel stragglers.
type JobWaiter interface {
	WaitUntilDone(ctx context.Context, cfg pipeline.WaitConfig) (pipeline.Result, error)
	Cancel(ctx context.Context, project, region, jobID string) error
}

// MetricsCollector derives the throughput record for a finished job.
type MetricsCollector interface {
	Collect(ctx context.Context, info *pipeline.LaunchInfo, testName string, elapsed time.Duration) (*metrics.Record, error)
}

// MetricsExporter ships a record to the external metrics store.
type MetricsExporter interface {
	Export(ctx context.Context, rec *metrics.Record) error
}

// BacklogSpec parametrizes one backlog scenario run.
type BacklogSpec struct {
	TestName string
	Project  string
	Region   string
	// SpecPath is the template under test.
	SpecPath string
	// TableID is the destination table, created by the run with
	// ColumnFamilies before data generation starts.
	TableID        string
	ColumnFamilies []string
	// InputDir is the gs:// directory the generator writes to; the launch
	// uses InputDir + "/*" as the input file pattern so the two can never
	// disagree.
	InputDir string

	GenerateTimeout time.Duration
	WaitTimeout     time.Duration
	// SampleLimit bounds the post-condition read (default 5).
	SampleLimit int64

	// ParamsAdder optionally amends the launch configuration before
	// submission, e.g. for template variants.
	ParamsAdder func(*pipeline.LaunchConfig)
}

func (s *BacklogSpec) validate() error {
	switch {
	case s.TestName == "":
		return fmt.Errorf("test name is required")
	case s.Project == "":
		return fmt.Errorf("project is required")
	case s.Region == "":
		return fmt.Errorf("region is required")
	case s.SpecPath == "":
		return fmt.Errorf("spec path is required")
	case s.TableID == "":
		return fmt.Errorf("table id is required")
	case len(s.ColumnFamilies) == 0:
		return fmt.Errorf("at least one column family is required")
	case s.InputDir == "":
		return fmt.Errorf("input directory is required")
	}
	return nil
}

// BacklogDeps are the collaborators of a backlog run. Exporter may be nil
// when metrics export is not configured.
type BacklogDeps struct {
	Tables    TableProvisioner
	Generator DataGenerator
	Launcher  JobLauncher
	Operator  JobWaiter
	Collector MetricsCollector
	Exporter  MetricsExporter
	Logger    *slog.Logger
}

// RunBacklog executes the backlog scenario: create the destination table,
// generate the input backlog, launch the template, wait for a terminal
// state, assert the destination received rows, and collect metrics. The
// first failure aborts everything after it; resource release is the
// caller's deferred concern. A failed or timed-out job never reaches
// metrics export.
func RunBacklog(ctx context.Context, deps BacklogDeps, spec BacklogSpec) (*metrics.Record, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("backlog spec: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("test", spec.TestName)
	if spec.SampleLimit <= 0 {
		spec.SampleLimit = 5
	}

	// Arrange: destination table, then the input backlog.
	if err := deps.Tables.CreateTable(ctx, spec.TableID, spec.ColumnFamilies); err != nil {
		return nil, err
	}
	if err := deps.Generator.Execute(ctx, spec.GenerateTimeout); err != nil {
		return nil, err
	}

	// Act: launch and wait.
	launch := pipeline.NewLaunchConfig(spec.TestName, spec.SpecPath).
		AddParameter("bigtableProjectId", spec.Project).
		AddParameter("bigtableInstanceId", deps.Tables.InstanceID()).
		AddParameter("bigtableTableId", spec.TableID).
		AddParameter("inputFilePattern", spec.InputDir+"/*")
	if spec.ParamsAdder != nil {
		spec.ParamsAdder(launch)
	}

	info, err := deps.Launcher.Launch(ctx, spec.Project, spec.Region, launch)
	if err != nil {
		return nil, err
	}
	if info.State == pipeline.StateFailed {
		return nil, fmt.Errorf("job %s failed at launch", info.JobID)
	}

	started := time.Now()
	result, err := deps.Operator.WaitUntilDone(ctx, pipeline.WaitConfig{
		Project: spec.Project,
		Region:  spec.Region,
		JobID:   info.JobID,
		Timeout: spec.WaitTimeout,
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	if result == pipeline.ResultTimedOut {
		if cancelErr := deps.Operator.Cancel(ctx, spec.Project, spec.Region, info.JobID); cancelErr != nil {
			logger.Warn("failed to cancel timed-out job", "job_id", info.JobID, "error", cancelErr)
		}
		return nil, fmt.Errorf("job %s did not finish within %s", info.JobID, spec.WaitTimeout)
	}
	if !result.Successful() {
		return nil, fmt.Errorf("job %s ended %s", info.JobID, result)
	}

	// Assert: the destination table received rows.
	rows, err := deps.Tables.SampleRows(ctx, spec.TableID, spec.SampleLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("destination table %s is empty after job %s finished", spec.TableID, info.JobID)
	}
	logger.Info("destination table verified", "table", spec.TableID, "sampled_rows", len(rows))

	rec, err := deps.Collector.Collect(ctx, info, spec.TestName, elapsed)
	if err != nil {
		return nil, err
	}
	// Export is best-effort and never changes the outcome.
	if deps.Exporter != nil {
		if err := deps.Exporter.Export(ctx, rec); err != nil {
			logger.Warn("metrics export failed", "job_id", info.JobID, "error", err)
		}
	}
	return rec, nil
}
