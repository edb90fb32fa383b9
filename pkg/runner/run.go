package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dataflow-loadtest/internal/artifacts"
	"dataflow-loadtest/internal/config"
	"dataflow-loadtest/internal/datagen"
	"dataflow-loadtest/internal/loadtest"
	"dataflow-loadtest/internal/tablestore"
)

// cleanupBudget bounds resource release after the run, successful or not.
const cleanupBudget = 10 * time.Minute

// runScenario provisions per-run resources, executes the backlog flow, and
// releases everything on every exit path.
func runScenario(ctx context.Context, logger *slog.Logger, props *config.Properties, sc *Scenario) error {
	harness, err := loadtest.NewHarness(ctx, props, logger)
	if err != nil {
		return err
	}
	defer harness.Close() //nolint:errcheck

	// Per-run resources. Cleanup is deferred immediately after each
	// acquisition so partially provisioned runs still release what exists.
	var managers []loadtest.ResourceManager
	defer func() {
		// The run context may already be cancelled; cleanup gets its own.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupBudget)
		defer cancel()
		if err := loadtest.CleanupAll(cctx, logger, managers...); err != nil {
			logger.Error("cleanup finished with errors", "error", err)
		}
	}()

	gcs, err := artifacts.NewClient(ctx, props.ArtifactBucket, sc.TestRoot, logger)
	if err != nil {
		return err
	}
	managers = append(managers, gcs)

	tables, err := tablestore.NewManager(ctx, sc.TestName, props.Project, nil, logger)
	if err != nil {
		return err
	}
	managers = append(managers, tables)

	// Upload the schema descriptors the generator and template reference.
	uploaded, err := gcs.UploadArtifacts(ctx, map[string]string{
		"input/schema.json":   sc.SchemaFile,
		"input/bigtable.avsc": sc.AvroSchemaFile,
	})
	if err != nil {
		return err
	}

	inputDir := gcs.RunPath(sc.TestName)
	generator := datagen.New(harness.Launcher, harness.Operator,
		props.Project, props.Region, props.GeneratorSpecPath,
		datagen.Config{
			Name:               sc.TestName,
			SchemaLocation:     uploaded["input/schema.json"].Path(),
			QPS:                sc.QPS,
			MessagesLimit:      sc.Messages,
			SinkType:           datagen.SinkGCS,
			OutputDirectory:    inputDir,
			OutputType:         datagen.OutputAvro,
			AvroSchemaLocation: uploaded["input/bigtable.avsc"].Path(),
			NumShards:          sc.NumShards,
			NumWorkers:         sc.NumWorkers,
			MaxNumWorkers:      sc.MaxNumWorkers,
		}, logger)

	rec, err := loadtest.RunBacklog(ctx, harness.Deps(tables, generator), loadtest.BacklogSpec{
		TestName:        sc.TestName,
		Project:         props.Project,
		Region:          props.Region,
		SpecPath:        props.SpecPath,
		TableID:         tablestore.GenerateTableID(sc.TestName),
		ColumnFamilies:  sc.ColumnFamilies,
		InputDir:        inputDir,
		GenerateTimeout: sc.GenerateBudget(),
		WaitTimeout:     sc.WaitBudget(),
		SampleLimit:     sc.SampleRows,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: job=%s input=%.0f output=%.0f input_tput=%.1f/s output_tput=%.1f/s elapsed=%.0fs\n",
		sc.TestName, rec.JobID, rec.InputElements, rec.OutputElements,
		rec.InputThroughput, rec.OutputThroughput, rec.ElapsedSeconds)
	return nil
}
