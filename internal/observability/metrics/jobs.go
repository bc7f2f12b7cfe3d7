// Package metrics emits the report pipeline's standard stage and outcome metrics.
package metrics

import (
	"time"

	obserrors "github.com/target/report-runner/internal/observability/errors"
	"github.com/target/report-runner/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Pipeline stage names.
const (
	StageStatus  = "status"
	StageRender  = "render"
	StageDeliver = "deliver"
	StageSend    = "send"
)

// StageMetric captures one pipeline stage execution.
type StageMetric struct {
	Stage    string
	Format   string
	Channel  string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStage records a stage counter and, when a duration is known, its timing.
func EmitStage(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}

	// Every call carries the same keys so label sets stay stable; empty values are
	// dropped by the statsd encoder.
	tags := map[string]string{
		"stage":       in.Stage,
		"result":      in.Result,
		"format":      in.Format,
		"channel":     in.Channel,
		"error_class": "",
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("stage.result", 1, tags)
	if in.Duration > 0 {
		sink.Timing("stage.duration", in.Duration, CloneTags(tags))
	}
}

// JobMetric captures the terminal outcome of one job invocation.
type JobMetric struct {
	State         string
	Format        string
	Duration      time.Duration
	ArtifactBytes int64
	Err           error
}

// EmitJobOutcome records the job's terminal state, total duration and artifact size.
func EmitJobOutcome(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"state":       in.State,
		"format":      in.Format,
		"error_class": obserrors.Classify(in.Err),
	}

	sink.Count("job.outcome", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
	if in.ArtifactBytes > 0 {
		sink.Gauge("job.artifact_bytes", float64(in.ArtifactBytes), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
