package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"testing"

	apperrors "github.com/target/report-runner/internal/errors"
	"github.com/target/report-runner/internal/domain/model"
)

func TestClassify(t *testing.T) {
	_, pathErr := os.Open("/definitely/not/here")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "render failure", err: &model.RenderFailure{Kind: model.FailureValidation}, want: "render_validation"},
		{
			name: "oom",
			err:  fmt.Errorf("render: %w", &model.RenderFailure{Kind: model.FailureIsolation, OutOfMemory: true}),
			want: "render_isolation_oom",
		},
		{name: "app error", err: apperrors.Validation("bad"), want: "validation"},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "path error", err: fmt.Errorf("open: %w", pathErr), want: "syscall_errno"},
		{name: "plain", err: goerrors.New("x"), want: "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
