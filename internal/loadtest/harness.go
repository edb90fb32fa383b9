package loadtest

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"dataflow-loadtest/internal/config"
	"dataflow-loadtest/internal/metrics"
	"dataflow-loadtest/internal/pipeline"
)

// Harness bundles the shared, stateless collaborators of a load-test run:
// the launcher, operator, and metrics plumbing. Per-run resources (Bigtable
// instance, artifact namespace) are provisioned separately and released via
// CleanupAll.
type Harness struct {
	Props     *config.Properties
	Launcher  *pipeline.Launcher
	Operator  *pipeline.Operator
	Collector *metrics.Collector
	// Exporter is nil when metrics export is not configured.
	Exporter *metrics.BigQueryExporter
	Logger   *slog.Logger
}

// NewHarness builds the shared collaborators from validated properties.
func NewHarness(ctx context.Context, props *config.Properties, logger *slog.Logger, opts ...option.ClientOption) (*Harness, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range props.Warnings {
		logger.Warn(w)
	}

	launcher, err := pipeline.NewLauncher(ctx, logger, opts...)
	if err != nil {
		return nil, err
	}
	jobs := launcher.Jobs()
	operator := pipeline.NewOperator(jobs, logger)
	collector := metrics.NewCollector(jobs, metrics.StageIDs{
		Input:  props.InputPCollection,
		Output: props.OutputPCollection,
	}, logger)

	h := &Harness{
		Props:     props,
		Launcher:  launcher,
		Operator:  operator,
		Collector: collector,
		Logger:    logger,
	}
	if props.Export.Enabled() {
		exporter, err := metrics.NewBigQueryExporter(ctx, props.Export, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		h.Exporter = exporter
	}
	return h, nil
}

// Deps assembles BacklogDeps from the harness and the per-run resources.
func (h *Harness) Deps(tables TableProvisioner, generator DataGenerator) BacklogDeps {
	deps := BacklogDeps{
		Tables:    tables,
		Generator: generator,
		Launcher:  h.Launcher,
		Operator:  h.Operator,
		Collector: h.Collector,
		Logger:    h.Logger,
	}
	if h.Exporter != nil {
		deps.Exporter = h.Exporter
	}
	return deps
}

// Close releases the harness's own clients.
func (h *Harness) Close() error {
	if h.Exporter != nil {
		return h.Exporter.Close()
	}
	return nil
}
