package runner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dataflow-loadtest/internal/config"
)

// Scenario describes one backlog run, loaded from a YAML file. Zero values
// fall back to the standard 10 GB backlog profile.
type Scenario struct {
	TestName string `yaml:"test_name"`
	// TestRoot scopes all artifacts of this scenario in the bucket;
	// defaults to the lowercased test name.
	TestRoot string `yaml:"test_root"`

	Messages      string `yaml:"messages"`
	QPS           string `yaml:"qps"`
	NumShards     string `yaml:"num_shards"`
	NumWorkers    int64  `yaml:"num_workers"`
	MaxNumWorkers int64  `yaml:"max_num_workers"`

	ColumnFamilies []string `yaml:"column_families"`

	// Local descriptor files uploaded to the run namespace before
	// generation starts.
	SchemaFile     string `yaml:"schema_file"`
	AvroSchemaFile string `yaml:"avro_schema_file"`

	GenerateTimeout string `yaml:"generate_timeout"`
	WaitTimeout     string `yaml:"wait_timeout"`
	SampleRows      int64  `yaml:"sample_rows"`
}

// 56,000,000 messages of the generator schema make up approximately 10 GB.
const defaultMessages = "56000000"

func (s *Scenario) applyDefaults() {
	if s.TestName == "" {
		s.TestName = "testBacklog10gb"
	}
	if s.TestRoot == "" {
		s.TestRoot = strings.ToLower(s.TestName)
	}
	if s.Messages == "" {
		s.Messages = defaultMessages
	}
	if s.QPS == "" {
		s.QPS = "1000000"
	}
	if s.NumShards == "" {
		s.NumShards = "20"
	}
	if s.NumWorkers == 0 {
		s.NumWorkers = 20
	}
	if s.MaxNumWorkers == 0 {
		s.MaxNumWorkers = 100
	}
	if len(s.ColumnFamilies) == 0 {
		s.ColumnFamilies = []string{"SystemMetrics"}
	}
	if s.SampleRows == 0 {
		s.SampleRows = 5
	}
}

func (s *Scenario) validate() error {
	if s.SchemaFile == "" {
		return fmt.Errorf("schema_file is required")
	}
	if s.AvroSchemaFile == "" {
		return fmt.Errorf("avro_schema_file is required")
	}
	return nil
}

// GenerateBudget returns the data-generation wall-clock budget (default 30m).
func (s *Scenario) GenerateBudget() time.Duration {
	return config.ParseDurationDefault(s.GenerateTimeout, 30*time.Minute)
}

// WaitBudget returns the job completion budget (default 60m).
func (s *Scenario) WaitBudget() time.Duration {
	return config.ParseDurationDefault(s.WaitTimeout, 60*time.Minute)
}

// LoadScenario reads, defaults, and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}
