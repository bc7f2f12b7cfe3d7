// Package failurenotifier fans on-call alerts out to every configured sink.
package failurenotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/report-runner/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds each sink's delivery; zero means 30s.
	Timeout time.Duration
}

// Service dispatches failure events to all registered sinks and waits for them.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
}

// NewService constructs a failure notifier. Nil sinks are skipped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
	}
}

// NotifyJobFailure delivers payload to every sink concurrently and returns once all
// attempts have finished. A failing sink never prevents the others from being tried;
// the joined delivery errors are returned for the caller to log.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	if s == nil || len(s.sinks) == 0 {
		return nil
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	errs := make([]error, len(s.sinks))
	var g errgroup.Group
	for i, entry := range s.sinks {
		g.Go(func() error {
			sinkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := entry.Sink.SendJobFailure(sinkCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"error", err,
				)
				errs[i] = fmt.Errorf("%s: %w", entry.Name, err)
				return nil
			}
			s.logger.InfoContext(ctx, "on-call notified", "sink", entry.Name, "job_id", payload.JobID)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
