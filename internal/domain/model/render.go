package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FailureKind classifies why a render did not produce an artifact.
type FailureKind string

const (
	// FailureLoad means the template was missing or could not be opened.
	FailureLoad FailureKind = "load"
	// FailureValidation means the engine rejected a parameter value.
	FailureValidation FailureKind = "validation"
	// FailureEngine means the engine failed mid-export.
	FailureEngine FailureKind = "engine"
	// FailureInterop means the request/response exchange with the worker broke down.
	FailureInterop FailureKind = "interop"
	// FailureIsolation means the fault boundary itself crashed, timed out or ran out of memory.
	FailureIsolation FailureKind = "isolation"
)

// Infrastructure reports whether the failure points at the platform rather than the job data.
func (k FailureKind) Infrastructure() bool {
	return k == FailureIsolation || k == FailureInterop
}

// RenderFailure carries the detail of a failed render.
type RenderFailure struct {
	Kind        FailureKind `json:"kind"`
	Detail      string      `json:"detail"`
	OutOfMemory bool        `json:"outOfMemory,omitempty"`
}

// Error implements error so failures can be logged and classified directly.
func (f *RenderFailure) Error() string {
	if f == nil {
		return ""
	}
	if f.OutOfMemory {
		return fmt.Sprintf("%s failure (out of memory): %s", f.Kind, f.Detail)
	}
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Detail)
}

// RenderRequest is everything the fault boundary needs to produce one artifact.
type RenderRequest struct {
	JobID      uuid.UUID    `json:"jobId"`
	ReportPath string       `json:"reportPath"`
	Parameters []Parameter  `json:"parameters"`
	Format     OutputFormat `json:"format"`
	WorkingDir string       `json:"workingDir"`
}

// ErrRenderRequestInvalid is returned when a request lacks a template or working directory.
var ErrRenderRequestInvalid = errors.New("invalid render request")

// Validate checks the fields the worker relies on.
func (r RenderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.ReportPath) == "":
		return fmt.Errorf("%w: report path is required", ErrRenderRequestInvalid)
	case strings.TrimSpace(r.WorkingDir) == "":
		return fmt.Errorf("%w: working directory is required", ErrRenderRequestInvalid)
	case !r.Format.Valid():
		return fmt.Errorf("%w: unsupported format %q", ErrRenderRequestInvalid, r.Format)
	}
	return nil
}

// ExportDir is the directory under the working directory that receives artifacts.
func (r RenderRequest) ExportDir() string {
	return filepath.Join(r.WorkingDir, "export")
}

// ArtifactPath is where the artifact for r is written: the template stem with the
// format extension, inside ExportDir.
func (r RenderRequest) ArtifactPath() string {
	base := filepath.Base(strings.ReplaceAll(r.ReportPath, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(r.ExportDir(), stem+r.Format.Extension())
}

// RenderOutcome is the single result of a render: an artifact or a failure, never both.
type RenderOutcome struct {
	ArtifactPath string
	Title        string
	Failure      *RenderFailure
}

// RenderSucceeded builds a successful outcome.
func RenderSucceeded(artifactPath, title string) RenderOutcome {
	return RenderOutcome{ArtifactPath: artifactPath, Title: strings.TrimSpace(title)}
}

// RenderFailed builds a failed outcome.
func RenderFailed(kind FailureKind, detail string) RenderOutcome {
	return RenderOutcome{Failure: &RenderFailure{Kind: kind, Detail: detail}}
}

// RenderOutOfMemory builds an isolation failure caused by resource exhaustion.
func RenderOutOfMemory(detail string) RenderOutcome {
	return RenderOutcome{Failure: &RenderFailure{Kind: FailureIsolation, Detail: detail, OutOfMemory: true}}
}

// Succeeded reports whether an artifact was produced.
func (o RenderOutcome) Succeeded() bool {
	return o.Failure == nil && o.ArtifactPath != ""
}

// ErrAmbiguousOutcome is returned when an outcome carries both or neither of artifact and failure.
var ErrAmbiguousOutcome = errors.New("render outcome must carry exactly one of artifact or failure")

// Validate enforces the one-of rule.
func (o RenderOutcome) Validate() error {
	hasArtifact := o.ArtifactPath != ""
	hasFailure := o.Failure != nil
	if hasArtifact == hasFailure {
		return ErrAmbiguousOutcome
	}
	return nil
}
