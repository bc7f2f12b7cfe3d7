// Package errors derives low-cardinality error_class tags for metrics, events and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/report-runner/internal/errors"
	"github.com/target/report-runner/internal/domain/model"
)

// Classify returns a normalized error class suitable for tagging metrics and logs.
//
// Known errors map to stable names: render failures to "render_<kind>" (with an
// "_oom" suffix for resource exhaustion), application errors to their code, context
// errors to "timeout"/"canceled". Anything else is classified by the innermost
// concrete type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var rf *model.RenderFailure
	if goerrors.As(err, &rf) {
		if rf.OutOfMemory {
			return "render_" + string(rf.Kind) + "_oom"
		}
		return "render_" + string(rf.Kind)
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
