// Package renderer runs one render inside a fresh fault boundary.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
)

// Config holds render limits.
type Config struct {
	// Timeout bounds the whole render; zero disables the bound.
	Timeout time.Duration
	// ReleaseWait is how long to wait after an isolation failure so the faulted
	// worker's resources are released before the caller continues.
	ReleaseWait time.Duration
}

// ServiceOptions groups dependencies for Service.
type ServiceOptions struct {
	Factory core.BoundaryFactory // Required: creates one boundary per render
	Config  Config
	Logger  *slog.Logger // Optional: structured logger
}

// Service is the isolated renderer.
type Service struct {
	factory core.BoundaryFactory
	cfg     Config
	logger  *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewService constructs a Service. It panics if the factory is nil.
func NewService(opts ServiceOptions) *Service {
	if opts.Factory == nil {
		panic("renderer: BoundaryFactory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		factory: opts.Factory,
		cfg:     opts.Config,
		logger:  logger.With("component", "renderer"),
		sleep:   sleepContext,
	}
}

// Render produces exactly one outcome for req. The boundary is opened immediately
// before the call and closed exactly once on every path, including panics.
func (s *Service) Render(ctx context.Context, req model.RenderRequest) (out model.RenderOutcome) {
	if err := req.Validate(); err != nil {
		return model.RenderFailed(model.FailureInterop, err.Error())
	}

	renderCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	boundary, err := s.factory.Open(renderCtx)
	if err != nil {
		s.logger.ErrorContext(ctx, "render boundary could not be opened", "job_id", req.JobID, "error", err)
		out = model.RenderFailed(model.FailureIsolation, "the render worker could not be started")
		s.release(ctx, out)
		return out
	}

	closeBoundary := closeOnce(boundary)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "render boundary panicked", "job_id", req.JobID, "panic", r)
			out = model.RenderFailed(model.FailureIsolation, fmt.Sprintf("the render worker failed unexpectedly: %v", r))
		}
		if cerr := closeBoundary(); cerr != nil {
			s.logger.WarnContext(ctx, "render boundary close failed", "job_id", req.JobID, "error", cerr)
		}
		s.release(ctx, out)
		s.log(ctx, req, out, time.Since(started))
	}()

	out = boundary.Render(renderCtx, req)
	if err := out.Validate(); err != nil {
		return model.RenderFailed(model.FailureInterop, err.Error())
	}
	if out.Succeeded() {
		if _, statErr := os.Stat(out.ArtifactPath); statErr != nil {
			return model.RenderFailed(model.FailureEngine, "the rendered file could not be found")
		}
	}
	return out
}

// release pauses after an isolation failure. It runs after the boundary is closed.
func (s *Service) release(ctx context.Context, out model.RenderOutcome) {
	if out.Failure == nil || out.Failure.Kind != model.FailureIsolation || s.cfg.ReleaseWait <= 0 {
		return
	}
	s.sleep(ctx, s.cfg.ReleaseWait)
}

func (s *Service) log(ctx context.Context, req model.RenderRequest, out model.RenderOutcome, elapsed time.Duration) {
	if out.Succeeded() {
		s.logger.InfoContext(ctx, "render succeeded",
			"job_id", req.JobID,
			"artifact", out.ArtifactPath,
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}
	s.logger.WarnContext(ctx, "render failed",
		"job_id", req.JobID,
		"kind", out.Failure.Kind,
		"out_of_memory", out.Failure.OutOfMemory,
		"detail", out.Failure.Detail,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func closeOnce(b core.RenderBoundary) func() error {
	var (
		once sync.Once
		err  error
	)
	return func() error {
		once.Do(func() { err = b.Close() })
		return err
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
