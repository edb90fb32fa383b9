//go:build loadtest

// Load test for the GCS Avro to Bigtable template. It provisions a Bigtable
// instance and a run-scoped GCS namespace, generates a 10 GB Avro backlog,
// launches the template, waits for completion, and checks the destination
// table received rows before exporting throughput metrics.
//
// Requires LT_PROJECT and LT_ARTIFACT_BUCKET (and application default
// credentials); the test skips when they are absent.
package loadtest

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataflow-loadtest/internal/artifacts"
	"dataflow-loadtest/internal/config"
	"dataflow-loadtest/internal/datagen"
	"dataflow-loadtest/internal/loadtest"
	"dataflow-loadtest/internal/tablestore"
)

const testRootDir = "avrotobigtablelt"

func TestBacklog10gb(t *testing.T) {
	props, err := config.LoadFromEnv()
	require.NoError(t, err)
	if err := props.Validate(); err != nil {
		t.Skipf("load test properties not configured: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: props.SlogLevel()}))
	ctx := context.Background()

	harness, err := loadtest.NewHarness(ctx, props, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = harness.Close() })

	// Per-run resources, released exactly once whatever the outcome below.
	var managers []loadtest.ResourceManager
	t.Cleanup(func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := loadtest.CleanupAll(cctx, logger, managers...); err != nil {
			t.Errorf("cleanup finished with errors: %v", err)
		}
	})

	gcs, err := artifacts.NewClient(ctx, props.ArtifactBucket, testRootDir, logger)
	require.NoError(t, err)
	managers = append(managers, gcs)

	tables, err := tablestore.NewManager(ctx, t.Name(), props.Project, nil, logger)
	require.NoError(t, err)
	managers = append(managers, tables)

	// Upload the generator schema and the Avro schema the template expects.
	uploaded, err := gcs.UploadArtifacts(ctx, map[string]string{
		"input/schema.json":   "testdata/schema.json",
		"input/bigtable.avsc": "testdata/bigtable.avsc",
	})
	require.NoError(t, err)

	testName := "testBacklog10gb"
	inputDir := gcs.RunPath(testName)

	// 56,000,000 messages of the generator schema make up approximately 10GB.
	generator := datagen.New(harness.Launcher, harness.Operator,
		props.Project, props.Region, props.GeneratorSpecPath,
		datagen.Config{
			Name:               testName,
			SchemaLocation:     uploaded["input/schema.json"].Path(),
			QPS:                "1000000",
			MessagesLimit:      "56000000",
			SinkType:           datagen.SinkGCS,
			OutputDirectory:    inputDir,
			OutputType:         datagen.OutputAvro,
			AvroSchemaLocation: uploaded["input/bigtable.avsc"].Path(),
			NumShards:          "20",
			NumWorkers:         20,
			MaxNumWorkers:      100,
		}, logger)

	rec, err := loadtest.RunBacklog(ctx, harness.Deps(tables, generator), loadtest.BacklogSpec{
		TestName: testName,
		Project:  props.Project,
		Region:   props.Region,
		SpecPath: props.SpecPath,
		TableID:  tablestore.GenerateTableID(testName),
		// The generated data contains a single column family.
		ColumnFamilies:  []string{"SystemMetrics"},
		InputDir:        inputDir,
		GenerateTimeout: 30 * time.Minute,
		WaitTimeout:     60 * time.Minute,
		SampleLimit:     5,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Positive(t, rec.InputElements)
	assert.Positive(t, rec.OutputElements)
	assert.Positive(t, rec.InputThroughput)
	t.Logf("input=%.0f output=%.0f input_tput=%.1f/s output_tput=%.1f/s elapsed=%.0fs",
		rec.InputElements, rec.OutputElements, rec.InputThroughput, rec.OutputThroughput, rec.ElapsedSeconds)
}
