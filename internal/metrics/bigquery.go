package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"dataflow-loadtest/internal/config"
)

// BigQueryExporter writes records to a configured dataset/table. The table
// schema is inferred from Record's bigquery tags.
type BigQueryExporter struct {
	client  *bigquery.Client
	dataset string
	table   string
	logger  *slog.Logger
}

// NewBigQueryExporter creates an exporter for the configured destination.
func NewBigQueryExporter(ctx context.Context, cfg config.ExportConfig, logger *slog.Logger, opts ...option.ClientOption) (*BigQueryExporter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("metrics export is not configured")
	}
	client, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BigQueryExporter{
		client:  client,
		dataset: cfg.Dataset,
		table:   cfg.Table,
		logger:  logger.With("component", "metrics-export"),
	}, nil
}

// Export inserts one record. Callers treat failures as non-fatal.
func (e *BigQueryExporter) Export(ctx context.Context, rec *Record) error {
	ins := e.client.Dataset(e.dataset).Table(e.table).Inserter()
	if err := ins.Put(ctx, rec); err != nil {
		return fmt.Errorf("insert into %s.%s: %w", e.dataset, e.table, err)
	}
	e.logger.Info("metrics exported", "dataset", e.dataset, "table", e.table, "job_id", rec.JobID)
	return nil
}

// Close releases the underlying client.
func (e *BigQueryExporter) Close() error {
	return e.client.Close()
}
