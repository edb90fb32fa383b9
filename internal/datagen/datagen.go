// Package datagen drives the synthetic data generator template. The
// generator itself is an external flex template; this package only builds
// its parameter set, launches it, and blocks until it finishes within a
// wall-clock budget.
package datagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	dataflow "google.golang.org/api/dataflow/v1b3"

	"dataflow-loadtest/internal/pipeline"
)

// ErrGenerationTimeout marks a generation run that exceeded its budget.
// This is a hard failure of the test, not a retry condition.
var ErrGenerationTimeout = errors.New("data generation timed out")

// Sink and output types understood by the generator template.
const (
	SinkGCS    = "GCS"
	OutputAvro = "AVRO"
)

// Config describes one generation run. String fields map one-to-one onto
// template parameters; empty fields are omitted from the launch.
type Config struct {
	// Name scopes the generator job name; usually the test name.
	Name string
	// SchemaLocation is the gs:// path of the generator schema descriptor.
	SchemaLocation string
	// QPS is the target generation rate, messages per second.
	QPS string
	// MessagesLimit bounds the total number of generated messages.
	MessagesLimit string
	// SinkType selects the destination system (e.g. SinkGCS).
	SinkType string
	// OutputDirectory is the gs:// directory receiving generated shards.
	OutputDirectory string
	// OutputType selects the serialization format (e.g. OutputAvro).
	OutputType string
	// AvroSchemaLocation is the gs:// path of the Avro schema the records
	// must conform to. Required when OutputType is AVRO.
	AvroSchemaLocation string
	// NumShards is the output partition count.
	NumShards string
	// NumWorkers and MaxNumWorkers bound generator autoscaling.
	NumWorkers    int64
	MaxNumWorkers int64
}

// Parameters returns the template parameter map, omitting empty values.
func (c *Config) Parameters() map[string]string {
	params := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			params[k] = v
		}
	}
	set("schemaLocation", c.SchemaLocation)
	set("qps", c.QPS)
	set("messagesLimit", c.MessagesLimit)
	set("sinkType", c.SinkType)
	set("outputDirectory", c.OutputDirectory)
	set("outputType", c.OutputType)
	set("avroSchemaLocation", c.AvroSchemaLocation)
	set("numShards", c.NumShards)
	return params
}

func (c *Config) validate() error {
	if c.SchemaLocation == "" {
		return fmt.Errorf("schema location is required")
	}
	if c.QPS == "" {
		return fmt.Errorf("qps is required")
	}
	if _, err := strconv.ParseInt(c.QPS, 10, 64); err != nil {
		return fmt.Errorf("qps %q is not an integer", c.QPS)
	}
	if c.SinkType == SinkGCS && c.OutputDirectory == "" {
		return fmt.Errorf("output directory is required for the GCS sink")
	}
	if c.OutputType == OutputAvro && c.AvroSchemaLocation == "" {
		return fmt.Errorf("avro schema location is required for AVRO output")
	}
	return nil
}

type launcher interface {
	Launch(ctx context.Context, project, region string, cfg *pipeline.LaunchConfig) (*pipeline.LaunchInfo, error)
}

type waiter interface {
	WaitUntilDone(ctx context.Context, cfg pipeline.WaitConfig) (pipeline.Result, error)
	Cancel(ctx context.Context, project, region, jobID string) error
}

// Generator launches the data generator template and waits for it.
type Generator struct {
	launcher launcher
	operator waiter
	project  string
	region   string
	specPath string
	cfg      Config
	logger   *slog.Logger
}

// New builds a generator bound to one configuration.
func New(l *pipeline.Launcher, o *pipeline.Operator, project, region, specPath string, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		launcher: l,
		operator: o,
		project:  project,
		region:   region,
		specPath: specPath,
		cfg:      cfg,
		logger:   logger.With("component", "datagen"),
	}
}

// Execute launches the generator and blocks until it completes or the budget
// elapses. On timeout the generator job is cancelled and
// ErrGenerationTimeout is returned.
func (g *Generator) Execute(ctx context.Context, timeout time.Duration) error {
	if err := g.cfg.validate(); err != nil {
		return fmt.Errorf("generator config: %w", err)
	}

	launch := pipeline.NewLaunchConfig(g.cfg.Name+"-datagen", g.specPath)
	launch.Parameters = g.cfg.Parameters()
	if g.cfg.NumWorkers > 0 || g.cfg.MaxNumWorkers > 0 {
		launch.FlexEnvironment = &dataflow.FlexTemplateRuntimeEnvironment{
			NumWorkers: g.cfg.NumWorkers,
			MaxWorkers: g.cfg.MaxNumWorkers,
		}
	}

	g.logger.Info("starting data generation",
		"messages", g.cfg.MessagesLimit, "qps", g.cfg.QPS,
		"shards", g.cfg.NumShards, "output", g.cfg.OutputDirectory, "budget", timeout)

	info, err := g.launcher.Launch(ctx, g.project, g.region, launch)
	if err != nil {
		return fmt.Errorf("launch data generator: %w", err)
	}

	result, err := g.operator.WaitUntilDone(ctx, pipeline.WaitConfig{
		Project: g.project,
		Region:  g.region,
		JobID:   info.JobID,
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("wait for data generator %s: %w", info.JobID, err)
	}
	switch result {
	case pipeline.ResultFinished:
		g.logger.Info("data generation finished", "job_id", info.JobID)
		return nil
	case pipeline.ResultTimedOut:
		if cancelErr := g.operator.Cancel(ctx, g.project, g.region, info.JobID); cancelErr != nil {
			g.logger.Warn("failed to cancel timed-out generator", "job_id", info.JobID, "error", cancelErr)
		}
		return fmt.Errorf("generator job %s: %w", info.JobID, ErrGenerationTimeout)
	default:
		return fmt.Errorf("generator job %s ended %s", info.JobID, result)
	}
}
