// Package pipeline launches Dataflow template jobs and waits for them to
// reach a terminal state. It supports classic templates (a staged template
// file addressed by gcsPath) and flex templates (a container spec JSON).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	dataflow "google.golang.org/api/dataflow/v1b3"
	"google.golang.org/api/option"
)

// LaunchConfig is the parameter set submitted to start a template job. It is
// built once per test invocation and must not be mutated after submission.
type LaunchConfig struct {
	// JobName is the Dataflow job name, unique per run.
	JobName string
	// SpecPath is the gs:// location of the template spec.
	SpecPath string
	// Parameters are passed to the template verbatim. The launcher performs
	// no semantic validation; bad values surface as launch-time failures
	// reported by the service.
	Parameters map[string]string
	// Environment optionally tunes worker settings for classic templates.
	Environment *dataflow.RuntimeEnvironment
	// FlexEnvironment optionally tunes worker settings for flex templates.
	FlexEnvironment *dataflow.FlexTemplateRuntimeEnvironment
}

// NewLaunchConfig builds a launch configuration with a unique job name
// derived from name.
func NewLaunchConfig(name, specPath string) *LaunchConfig {
	return &LaunchConfig{
		JobName:    UniqueJobName(name),
		SpecPath:   specPath,
		Parameters: map[string]string{},
	}
}

// AddParameter sets one template parameter and returns the config for
// chaining.
func (c *LaunchConfig) AddParameter(key, value string) *LaunchConfig {
	c.Parameters[key] = value
	return c
}

// LaunchInfo identifies a submitted job. It is owned by the service; the
// harness only reads it.
type LaunchInfo struct {
	JobID      string
	JobName    string
	Project    string
	Region     string
	State      string
	CreateTime string
}

// Launcher submits template jobs to the Dataflow service.
type Launcher struct {
	svc    *dataflow.Service
	logger *slog.Logger
}

// NewLauncher creates a launcher backed by the Dataflow REST API.
func NewLauncher(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Launcher, error) {
	svc, err := dataflow.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create dataflow service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{svc: svc, logger: logger.With("component", "launcher")}, nil
}

// Jobs returns a JobClient for polling and cancelling jobs submitted through
// this launcher.
func (l *Launcher) Jobs() JobClient {
	return &restJobClient{svc: l.svc}
}

// Launch submits the job and returns its handle. The template kind is
// derived from the template spec path: flex container specs live under a flex/
// directory or end in .json, classic template files do not.
func (l *Launcher) Launch(ctx context.Context, project, region string, cfg *LaunchConfig) (*LaunchInfo, error) {
	if cfg.JobName == "" || cfg.SpecPath == "" {
		return nil, fmt.Errorf("job name and spec path are required")
	}
	if project == "" || region == "" {
		return nil, fmt.Errorf("project and region are required")
	}

	l.logger.Info("launching template job",
		"job", cfg.JobName, "spec", cfg.SpecPath, "project", project, "region", region)

	var (
		job *dataflow.Job
		err error
	)
	if IsFlexSpec(cfg.SpecPath) {
		job, err = l.launchFlex(ctx, project, region, cfg)
	} else {
		job, err = l.launchClassic(ctx, project, region, cfg)
	}
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("launch %s: service returned no job", cfg.JobName)
	}

	info := &LaunchInfo{
		JobID:      job.Id,
		JobName:    job.Name,
		Project:    project,
		Region:     region,
		State:      job.CurrentState,
		CreateTime: job.CreateTime,
	}
	l.logger.Info("job launched", "job_id", info.JobID, "state", info.State)
	return info, nil
}

func (l *Launcher) launchClassic(ctx context.Context, project, region string, cfg *LaunchConfig) (*dataflow.Job, error) {
	params := &dataflow.LaunchTemplateParameters{
		JobName:     cfg.JobName,
		Parameters:  cfg.Parameters,
		Environment: cfg.Environment,
	}
	resp, err := l.svc.Projects.Locations.Templates.Launch(project, region, params).
		GcsPath(cfg.SpecPath).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("launch classic template %s: %w", cfg.SpecPath, err)
	}
	return resp.Job, nil
}

func (l *Launcher) launchFlex(ctx context.Context, project, region string, cfg *LaunchConfig) (*dataflow.Job, error) {
	req := &dataflow.LaunchFlexTemplateRequest{
		LaunchParameter: &dataflow.LaunchFlexTemplateParameter{
			JobName:              cfg.JobName,
			ContainerSpecGcsPath: cfg.SpecPath,
			Parameters:           cfg.Parameters,
			Environment:          cfg.FlexEnvironment,
		},
	}
	resp, err := l.svc.Projects.Locations.FlexTemplates.Launch(project, region, req).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("launch flex template %s: %w", cfg.SpecPath, err)
	}
	return resp.Job, nil
}

// IsFlexSpec reports whether specPath addresses a flex template container
// spec rather than a staged classic template.
func IsFlexSpec(specPath string) bool {
	return strings.Contains(specPath, "/flex/") || strings.HasSuffix(specPath, ".json")
}
