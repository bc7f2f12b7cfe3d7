package model

import (
	"time"

	"github.com/google/uuid"
)

// JobEventType names a lifecycle event published after a job reaches a terminal state.
type JobEventType string

const (
	// JobEventCompleted is published when the artifact was rendered and routed.
	JobEventCompleted JobEventType = "report.completed"
	// JobEventFailed is published when the render failed.
	JobEventFailed JobEventType = "report.failed"
)

// JobEvent is the message body of a lifecycle event.
type JobEvent struct {
	ID           uuid.UUID       `json:"id"`
	Type         JobEventType    `json:"type"`
	JobID        uuid.UUID       `json:"jobId"`
	ReportName   string          `json:"reportName"`
	OutputFormat OutputFormat    `json:"outputFormat"`
	Artifact     string          `json:"artifact,omitempty"`
	Channel      DeliveryChannel `json:"channel,omitempty"`
	FailureKind  FailureKind     `json:"failureKind,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Requestor    string          `json:"requestor,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
}
