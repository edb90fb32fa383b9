package pipeline

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var jobNamePattern = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)

func TestSanitizeJobName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AvroToBigtableLT", "avrotobigtablelt"},
		{"test Backlog_10gb", "test-backlog-10gb"},
		{"--weird--", "weird"},
		{"10gb", "gb"},
		{"___", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeJobName(tt.in), "input %q", tt.in)
	}
}

func TestUniqueJobName(t *testing.T) {
	name := UniqueJobName("AvroToBigtableLT")
	assert.Regexp(t, jobNamePattern, name)
	assert.LessOrEqual(t, len(name), maxJobNameLen)
	assert.Contains(t, name, "avrotobigtablelt-")

	assert.NotEqual(t, name, UniqueJobName("AvroToBigtableLT"))
}

func TestUniqueJobName_DegenerateInputs(t *testing.T) {
	for _, in := range []string{"", "___", "1234", "averylongtestnamethatwouldblowthelimitifitwerekeptallthewaythrough"} {
		name := UniqueJobName(in)
		assert.Regexp(t, jobNamePattern, name, "input %q", in)
		assert.LessOrEqual(t, len(name), maxJobNameLen, "input %q", in)
	}
}

func TestIsFlexSpec(t *testing.T) {
	assert.True(t, IsFlexSpec("gs://dataflow-templates/latest/flex/Streaming_Data_Generator"))
	assert.True(t, IsFlexSpec("gs://my-bucket/specs/generator-spec.json"))
	assert.False(t, IsFlexSpec("gs://dataflow-templates/latest/GCS_Avro_to_Cloud_Bigtable"))
}
