package renderengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/target/report-runner/internal/domain/model"
)

// Response is the single message the worker writes to stdout.
type Response struct {
	ArtifactPath string               `json:"artifactPath,omitempty"`
	Title        string               `json:"title,omitempty"`
	Failure      *model.RenderFailure `json:"failure,omitempty"`
}

// Outcome converts the wire response into a RenderOutcome. The result is not
// validated; callers check it with RenderOutcome.Validate.
func (r Response) Outcome() model.RenderOutcome {
	return model.RenderOutcome{ArtifactPath: r.ArtifactPath, Title: strings.TrimSpace(r.Title), Failure: r.Failure}
}

func responseFrom(out model.RenderOutcome) Response {
	return Response{ArtifactPath: out.ArtifactPath, Title: out.Title, Failure: out.Failure}
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Engine Engine
	Logger *slog.Logger
}

// Worker handles one render request.
type Worker struct {
	engine Engine
	logger *slog.Logger
}

// NewWorker constructs a Worker. A nil engine is allowed; every request then fails
// with an engine error.
func NewWorker(opts WorkerOptions) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{engine: opts.Engine, logger: logger.With("component", "render_worker")}
}

// Handle validates req and runs the engine. It never panics on bad input.
func (w *Worker) Handle(ctx context.Context, req model.RenderRequest) model.RenderOutcome {
	if err := req.Validate(); err != nil {
		return model.RenderFailed(model.FailureInterop, err.Error())
	}

	// The template is checked before any parameter is bound so a missing file is
	// always reported as a load failure.
	if err := checkTemplate(req.ReportPath); err != nil {
		w.logger.WarnContext(ctx, "template not loadable", "report", req.ReportPath, "error", err)
		return model.RenderFailed(model.FailureLoad, err.Error())
	}

	bindings, err := Bind(req.Parameters)
	if err != nil {
		return model.RenderFailed(model.FailureValidation, err.Error())
	}

	if w.engine == nil {
		return model.RenderFailed(model.FailureEngine, "no rendering engine is configured")
	}

	exp := Export{
		TemplatePath: req.ReportPath,
		Parameters:   bindings,
		Format:       req.Format,
		OutputPath:   req.ArtifactPath(),
	}
	if err := os.MkdirAll(req.ExportDir(), 0o750); err != nil {
		return model.RenderFailed(model.FailureEngine, fmt.Sprintf("create export directory: %v", err))
	}

	res, err := w.engine.Export(ctx, exp)
	if err != nil {
		kind, detail := classify(err)
		w.logger.WarnContext(ctx, "export failed", "kind", kind, "error", err)
		return model.RenderFailed(kind, detail)
	}

	info, err := os.Stat(exp.OutputPath)
	if err != nil || info.IsDir() {
		return model.RenderFailed(model.FailureEngine, "the rendering engine reported success but produced no file")
	}
	w.logger.InfoContext(ctx, "export finished", "artifact", exp.OutputPath, "bytes", info.Size())
	return model.RenderSucceeded(exp.OutputPath, res.Title)
}

func checkTemplate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("report template %s was not found", path)
		}
		return fmt.Errorf("report template %s could not be opened: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("report template %s could not be read: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("report template %s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("report template %s is empty", path)
	}
	return nil
}

// Bind validates parameter bindings: names are required and unique (case-insensitive)
// and single-select parameters carry at most one value.
func Bind(params []model.Parameter) ([]Binding, error) {
	seen := make(map[string]struct{}, len(params))
	out := make([]Binding, 0, len(params))
	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, model.ErrParameterName
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("parameter %s is bound more than once", name)
		}
		seen[key] = struct{}{}
		if !p.MultiSelect && len(p.SelectedValues) > 1 {
			return nil, fmt.Errorf("%w: %s", model.ErrSingleValueParameter, name)
		}
		out = append(out, Binding{Name: name, Values: append([]string{}, p.SelectedValues...), Multi: p.MultiSelect})
	}
	return out, nil
}

// Serve reads one JSON request from in, handles it and writes one JSON response to out.
// A request that cannot be decoded is answered with an interop failure.
func Serve(ctx context.Context, in io.Reader, out io.Writer, w *Worker) error {
	var req model.RenderRequest
	var outcome model.RenderOutcome
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		outcome = model.RenderFailed(model.FailureInterop, fmt.Sprintf("malformed render request: %v", err))
	} else {
		outcome = w.Handle(ctx, req)
	}
	if err := json.NewEncoder(out).Encode(responseFrom(outcome)); err != nil {
		return fmt.Errorf("write render response: %w", err)
	}
	return nil
}
