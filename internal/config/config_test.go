package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	t.Setenv("LT_PROJECT", "perf-project")
	t.Setenv("LT_REGION", "europe-west1")
	t.Setenv("LT_ARTIFACT_BUCKET", "perf-artifacts")
	t.Setenv("LT_SPEC_PATH", "gs://my-templates/v7/GCS_Avro_to_Cloud_Bigtable")
	t.Setenv("LT_EXPORT_DATASET", "load_tests")
	t.Setenv("LT_EXPORT_TABLE", "runs")

	p, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "perf-project", p.Project)
	assert.Equal(t, "europe-west1", p.Region)
	assert.Equal(t, "perf-artifacts", p.ArtifactBucket)
	assert.Equal(t, "gs://my-templates/v7/GCS_Avro_to_Cloud_Bigtable", p.SpecPath)
	assert.Equal(t, "load_tests", p.Export.Dataset)
	assert.Equal(t, "runs", p.Export.Table)
	assert.True(t, p.Export.Enabled())
	require.NoError(t, p.Validate())
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("LT_PROJECT", "perf-project")
	t.Setenv("LT_REGION", "")
	t.Setenv("LT_ARTIFACT_BUCKET", "perf-artifacts")
	t.Setenv("LT_SPEC_PATH", "")
	t.Setenv("LT_GENERATOR_SPEC_PATH", "")
	t.Setenv("LT_EXPORT_DATASET", "")
	t.Setenv("LT_EXPORT_PROJECT", "")

	p, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "us-central1", p.Region)
	assert.Equal(t, DefaultSpecPath, p.SpecPath)
	assert.Equal(t, DefaultGeneratorSpecPath, p.GeneratorSpecPath)
	assert.NotEmpty(t, p.InputPCollection)
	assert.NotEmpty(t, p.OutputPCollection)
	assert.Equal(t, "info", p.LogLevel)

	// Export falls back to the test project but stays disabled without a dataset.
	assert.Equal(t, "perf-project", p.Export.Project)
	assert.Equal(t, "template_load_metrics", p.Export.Table)
	assert.False(t, p.Export.Enabled())
	assert.NotEmpty(t, p.Warnings)
}

func TestLoadFromEnv_BucketSchemeStripped(t *testing.T) {
	t.Setenv("LT_ARTIFACT_BUCKET", "gs://perf-artifacts")

	p, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "perf-artifacts", p.ArtifactBucket)
}

func TestValidate_MissingRequired(t *testing.T) {
	p := &Properties{}
	require.Error(t, p.Validate())

	p.Project = "perf-project"
	require.Error(t, p.Validate())

	p.ArtifactBucket = "perf-artifacts"
	require.NoError(t, p.Validate())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"info", "INFO"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		p := &Properties{LogLevel: tt.level}
		assert.Equal(t, tt.want, p.SlogLevel().String(), "level %q", tt.level)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nLT_DOTENV_A=one\nLT_DOTENV_B=\"two\"\n\nnot-a-pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LT_DOTENV_A", "")
	t.Setenv("LT_DOTENV_B", "preset")
	_ = os.Unsetenv("LT_DOTENV_A")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "one", os.Getenv("LT_DOTENV_A"))
	// Existing env wins over the file.
	assert.Equal(t, "preset", os.Getenv("LT_DOTENV_B"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestParseDurationDefault(t *testing.T) {
	assert.Equal(t, 30*time.Minute, ParseDurationDefault("", 30*time.Minute))
	assert.Equal(t, 30*time.Minute, ParseDurationDefault("junk", 30*time.Minute))
	assert.Equal(t, 90*time.Second, ParseDurationDefault("90s", time.Minute))
}
