package model

import "time"

// DeliveryRecord is the persisted history row written once per job invocation.
type DeliveryRecord struct {
	JobID        string    `json:"job_id"        db:"job_id"`
	ReportName   string    `json:"report_name"   db:"report_name"`
	OutputFormat string    `json:"output_format" db:"output_format"`
	State        string    `json:"state"         db:"state"`
	Channel      *string   `json:"channel"       db:"channel"`
	ArtifactName *string   `json:"artifact_name" db:"artifact_name"`
	FailureKind  *string   `json:"failure_kind"  db:"failure_kind"`
	Detail       *string   `json:"detail"        db:"detail"`
	Recipients   []string  `json:"recipients"    db:"recipients"`
	StartedAt    time.Time `json:"started_at"    db:"started_at"`
	FinishedAt   time.Time `json:"finished_at"   db:"finished_at"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}
