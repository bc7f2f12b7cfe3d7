// Package renderengine runs inside the render worker process. It validates a render
// request, checks the template, binds parameters and drives the configured Engine.
package renderengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/report-runner/internal/domain/model"
)

// Export describes one engine invocation.
type Export struct {
	TemplatePath string
	Parameters   []Binding
	Format       model.OutputFormat
	OutputPath   string
}

// Binding is a parameter after validation, ready to hand to the engine.
type Binding struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
	Multi  bool     `json:"multi"`
}

// ExportResult carries metadata the engine reported about the artifact.
type ExportResult struct {
	Title string
}

// Engine produces an artifact from a template.
type Engine interface {
	Export(ctx context.Context, exp Export) (ExportResult, error)
}

// Error is a typed engine failure. Errors of any other type are treated as fatal
// export errors.
type Error struct {
	Kind    model.FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// LoadError reports a template that is missing or cannot be opened.
func LoadError(msg string, err error) *Error {
	return &Error{Kind: model.FailureLoad, Message: msg, Err: err}
}

// ValidationError reports a parameter value the engine rejected.
func ValidationError(msg string) *Error {
	return &Error{Kind: model.FailureValidation, Message: msg}
}

// ExportError reports a fatal failure while producing the artifact.
func ExportError(msg string, err error) *Error {
	return &Error{Kind: model.FailureEngine, Message: msg, Err: err}
}

// classify maps an engine error onto a failure kind and recipient-facing detail.
func classify(err error) (model.FailureKind, string) {
	var engErr *Error
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case model.FailureLoad, model.FailureValidation, model.FailureEngine:
			return engErr.Kind, engErr.Message
		}
		return model.FailureEngine, engErr.Message
	}
	return model.FailureEngine, err.Error()
}
