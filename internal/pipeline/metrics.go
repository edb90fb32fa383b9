package pipeline

import (
	"context"
	"fmt"

	dataflow "google.golang.org/api/dataflow/v1b3"
)

// ElementCount is the Dataflow counter tracking elements produced per
// PCollection. Its context carries the producing collection's name.
const (
	elementCountMetric = "ElementCount"
	pcollectionKey     = "output_user_name"
)

// ElementCounts extracts ElementCount values keyed by PCollection name from
// raw job metrics. Non-numeric scalars are skipped.
func ElementCounts(m *dataflow.JobMetrics) map[string]float64 {
	counts := make(map[string]float64)
	if m == nil {
		return counts
	}
	for _, mu := range m.Metrics {
		if mu.Name == nil || mu.Name.Name != elementCountMetric {
			continue
		}
		pcollection, ok := mu.Name.Context[pcollectionKey]
		if !ok {
			continue
		}
		if v, ok := scalarValue(mu.Scalar); ok {
			counts[pcollection] = v
		}
	}
	return counts
}

// StageElements fetches the job's metrics and returns the ElementCount for
// one named PCollection. The stage name is an external contract of the
// deployed pipeline and must match its internal naming exactly.
func StageElements(ctx context.Context, jobs JobClient, info *LaunchInfo, pcollection string) (float64, error) {
	m, err := jobs.GetJobMetrics(ctx, info.Project, info.Region, info.JobID)
	if err != nil {
		return 0, err
	}
	counts := ElementCounts(m)
	v, ok := counts[pcollection]
	if !ok {
		return 0, fmt.Errorf("no ElementCount for pcollection %q on job %s", pcollection, info.JobID)
	}
	return v, nil
}

func scalarValue(s interface{}) (float64, bool) {
	switch v := s.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
