package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/report-runner/internal/domain/model"
)

type recorded struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct{ calls []recorded }

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.calls = append(r.calls, recorded{"count", name, float64(value), tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.calls = append(r.calls, recorded{"gauge", name, value, tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.calls = append(r.calls, recorded{"timing", name, float64(value.Milliseconds()), tags})
}

func TestEmitStage_ErrorClass(t *testing.T) {
	sink := &recordingSink{}
	EmitStage(sink, StageMetric{
		Stage:    StageRender,
		Format:   "pdf",
		Result:   ResultError,
		Duration: 2 * time.Second,
		Err:      &model.RenderFailure{Kind: model.FailureEngine},
	})

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "stage.result", sink.calls[0].name)
	assert.Equal(t, map[string]string{
		"stage":       "render",
		"result":      "error",
		"format":      "pdf",
		"channel":     "",
		"error_class": "render_engine",
	}, sink.calls[0].tags)
	assert.Equal(t, "timing", sink.calls[1].kind)
	assert.InDelta(t, 2000, sink.calls[1].value, 0.1)
}

func TestEmitStage_SuccessSkipsErrorClassAndTiming(t *testing.T) {
	sink := &recordingSink{}
	EmitStage(sink, StageMetric{Stage: StageDeliver, Channel: "archive", Result: ResultSuccess})

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "archive", sink.calls[0].tags["channel"])
	assert.Empty(t, sink.calls[0].tags["error_class"])
}

func TestEmitJobOutcome(t *testing.T) {
	sink := &recordingSink{}
	EmitJobOutcome(sink, JobMetric{State: "completed", Format: "csv", Duration: time.Second, ArtifactBytes: 42})

	require.Len(t, sink.calls, 3)
	assert.Equal(t, "job.outcome", sink.calls[0].name)
	assert.Equal(t, "job.duration", sink.calls[1].name)
	assert.Equal(t, "job.artifact_bytes", sink.calls[2].name)
	assert.InDelta(t, 42, sink.calls[2].value, 0.001)
}

func TestNilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitStage(nil, StageMetric{Stage: StageSend})
		EmitJobOutcome(nil, JobMetric{State: "failed"})
	})
}
