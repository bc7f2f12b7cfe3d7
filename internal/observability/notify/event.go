// Package notify defines the on-call alert payload and the sink contract used to
// page operators when the render fault boundary fails.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// JobFailurePayload captures the data sent to on-call destinations when a job fails
// for infrastructure reasons.
type JobFailurePayload struct {
	JobID        string
	ReportName   string
	OutputFormat string
	Worker       string
	FailureKind  string
	OutOfMemory  bool
	Error        string
	ErrorClass   string
	Severity     string
	OccurredAt   time.Time
	Metadata     map[string]string
}

// Summary is the one-line headline used by every sink.
func (p JobFailurePayload) Summary() string {
	report := p.ReportName
	if strings.TrimSpace(report) == "" {
		report = "unknown report"
	}
	id := p.JobID
	if strings.TrimSpace(id) == "" {
		id = "unknown"
	}
	cause := p.FailureKind
	if p.OutOfMemory {
		cause = "out of memory"
	}
	if cause == "" {
		return fmt.Sprintf("Report job %s (%s) failed", id, report)
	}
	return fmt.Sprintf("Report job %s (%s) failed: %s", id, report, cause)
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
