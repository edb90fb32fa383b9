// Package config handles load-test configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Default template locations published by the Dataflow templates project.
const (
	DefaultSpecPath          = "gs://dataflow-templates/latest/GCS_Avro_to_Cloud_Bigtable"
	DefaultGeneratorSpecPath = "gs://dataflow-templates/latest/flex/Streaming_Data_Generator"
)

// Stage identifiers of the deployed pipeline used for metric extraction.
// These are internal PCollection names of the template under test and change
// independently of this harness, so they are configuration, not constants.
const (
	defaultInputPCollection  = "Read from Avro/Read/ParDo(BoundedSourceAsSDFWrapper)/ParMultiDo(BoundedSourceAsSDFWrapper).out0"
	defaultOutputPCollection = "Transform to Bigtable/ParMultiDo(AvroToBigtable).out0"
)

// ExportConfig holds the BigQuery destination for exported run metrics.
// Export is best-effort: when Dataset is empty, export is disabled.
type ExportConfig struct {
	Project string // defaults to the test project
	Dataset string
	Table   string // default "template_load_metrics"
}

// Enabled returns true when a metrics export destination is configured.
func (e *ExportConfig) Enabled() bool {
	return e.Dataset != ""
}

// Properties holds everything a load-test run needs. It is built once at run
// start and passed into each component; nothing reads the environment after
// LoadFromEnv returns.
type Properties struct {
	Project        string // GCP project hosting all provisioned resources
	Region         string // Dataflow region (default "us-central1")
	ArtifactBucket string // GCS bucket for uploaded artifacts and generated data

	SpecPath          string // template under test (default DefaultSpecPath)
	GeneratorSpecPath string // data generator flex template

	// Pipeline-internal stage names used to pull element counts.
	InputPCollection  string
	OutputPCollection string

	Export ExportConfig

	LogLevel string // debug, info, warn, error (default "info")

	// Warnings collects non-fatal findings from config loading. They are
	// logged by the caller once the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (p *Properties) SlogLevel() slog.Level {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the properties required by every scenario are present.
// Optional pieces (metrics export) are not validated here.
func (p *Properties) Validate() error {
	if p.Project == "" {
		return fmt.Errorf("LT_PROJECT must be set")
	}
	if p.ArtifactBucket == "" {
		return fmt.Errorf("LT_ARTIFACT_BUCKET must be set")
	}
	return nil
}

// LoadFromEnv loads load-test properties from environment variables.
// Missing required values do not fail here so callers (e.g. go test) can
// decide to skip instead; call Validate before running a scenario.
func LoadFromEnv() (*Properties, error) {
	p := &Properties{
		Project:           os.Getenv("LT_PROJECT"),
		Region:            os.Getenv("LT_REGION"),
		ArtifactBucket:    strings.TrimPrefix(os.Getenv("LT_ARTIFACT_BUCKET"), "gs://"),
		SpecPath:          os.Getenv("LT_SPEC_PATH"),
		GeneratorSpecPath: os.Getenv("LT_GENERATOR_SPEC_PATH"),
		InputPCollection:  os.Getenv("LT_INPUT_PCOLLECTION"),
		OutputPCollection: os.Getenv("LT_OUTPUT_PCOLLECTION"),
		LogLevel:          os.Getenv("LT_LOG_LEVEL"),
		Export: ExportConfig{
			Project: os.Getenv("LT_EXPORT_PROJECT"),
			Dataset: os.Getenv("LT_EXPORT_DATASET"),
			Table:   os.Getenv("LT_EXPORT_TABLE"),
		},
	}

	// Defaults
	if p.Region == "" {
		p.Region = "us-central1"
	}
	if p.SpecPath == "" {
		p.SpecPath = DefaultSpecPath
	}
	if p.GeneratorSpecPath == "" {
		p.GeneratorSpecPath = DefaultGeneratorSpecPath
	}
	if p.InputPCollection == "" {
		p.InputPCollection = defaultInputPCollection
	}
	if p.OutputPCollection == "" {
		p.OutputPCollection = defaultOutputPCollection
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	if p.Export.Project == "" {
		p.Export.Project = p.Project
	}
	if p.Export.Table == "" {
		p.Export.Table = "template_load_metrics"
	}
	if !p.Export.Enabled() {
		p.Warnings = append(p.Warnings, "LT_EXPORT_DATASET not set; metrics export disabled")
	}

	return p, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseDurationDefault parses d and falls back to def when d is empty or
// invalid. Used by scenario files where timeouts are optional.
func ParseDurationDefault(d string, def time.Duration) time.Duration {
	if d == "" {
		return def
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return def
	}
	return parsed
}
