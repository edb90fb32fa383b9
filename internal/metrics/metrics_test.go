package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dataflow "google.golang.org/api/dataflow/v1b3"

	"dataflow-loadtest/internal/pipeline"
)

type fakeJobs struct {
	metrics *dataflow.JobMetrics
	err     error
}

func (f *fakeJobs) GetJob(context.Context, string, string, string) (*dataflow.Job, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeJobs) CancelJob(context.Context, string, string, string) error {
	return errors.New("not implemented")
}

func (f *fakeJobs) GetJobMetrics(context.Context, string, string, string) (*dataflow.JobMetrics, error) {
	return f.metrics, f.err
}

func stageMetrics(input, output string, in, out float64) *dataflow.JobMetrics {
	mk := func(name string, v float64) *dataflow.MetricUpdate {
		return &dataflow.MetricUpdate{
			Name: &dataflow.MetricStructuredName{
				Name:    "ElementCount",
				Context: map[string]string{"output_user_name": name},
			},
			Scalar: v,
		}
	}
	return &dataflow.JobMetrics{Metrics: []*dataflow.MetricUpdate{mk(input, in), mk(output, out)}}
}

var testStages = StageIDs{Input: "read.out0", Output: "write.out0"}

func testCollector(jobs pipeline.JobClient) *Collector {
	return NewCollector(jobs, testStages, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCollect(t *testing.T) {
	jobs := &fakeJobs{metrics: stageMetrics("read.out0", "write.out0", 56000000, 55999000)}
	info := &pipeline.LaunchInfo{JobID: "j1", JobName: "avrotobigtablelt-x", Project: "p", Region: "r"}

	rec, err := testCollector(jobs).Collect(context.Background(), info, "testBacklog10gb", 70*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "testBacklog10gb", rec.TestName)
	assert.Equal(t, "j1", rec.JobID)
	assert.Equal(t, float64(56000000), rec.InputElements)
	assert.Equal(t, float64(55999000), rec.OutputElements)
	assert.InDelta(t, 56000000.0/4200.0, rec.InputThroughput, 0.01)
	assert.InDelta(t, 55999000.0/4200.0, rec.OutputThroughput, 0.01)
	assert.InDelta(t, 4200.0, rec.ElapsedSeconds, 0.01)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestCollect_MissingStage(t *testing.T) {
	jobs := &fakeJobs{metrics: stageMetrics("read.out0", "other.out0", 1, 2)}
	info := &pipeline.LaunchInfo{JobID: "j1"}

	_, err := testCollector(jobs).Collect(context.Background(), info, "t", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write.out0")
}

func TestCollect_FetchError(t *testing.T) {
	boom := errors.New("api down")
	jobs := &fakeJobs{err: boom}

	_, err := testCollector(jobs).Collect(context.Background(), &pipeline.LaunchInfo{JobID: "j1"}, "t", time.Minute)
	require.ErrorIs(t, err, boom)
}

func TestCollect_NonPositiveElapsed(t *testing.T) {
	jobs := &fakeJobs{metrics: stageMetrics("read.out0", "write.out0", 1, 1)}

	_, err := testCollector(jobs).Collect(context.Background(), &pipeline.LaunchInfo{JobID: "j1"}, "t", 0)
	require.Error(t, err)
}
