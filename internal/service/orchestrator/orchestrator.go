// Package orchestrator runs one report job from pickup to notification.
//
// The sequence is fixed: mark the job Processing, create a job-scoped working
// directory, render inside a fresh fault boundary, then either route the artifact
// and mark the job Completed, or compose diagnostics and mark it Failed. The email
// goes out last in both branches. Everything around that sequence (run lock,
// metrics, lifecycle events, delivery history) is best-effort.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
	obserrors "github.com/target/report-runner/internal/observability/errors"
	"github.com/target/report-runner/internal/observability/metrics"
	"github.com/target/report-runner/internal/observability/notify"
	"github.com/target/report-runner/internal/observability/statsd"
	"github.com/target/report-runner/internal/service/statusreporter"
)

// Renderer produces one outcome per request.
type Renderer interface {
	Render(ctx context.Context, req model.RenderRequest) model.RenderOutcome
}

// Router delivers a rendered artifact through exactly one channel.
type Router interface {
	Route(ctx context.Context, artifactPath string, job model.JobDescriptor, storage *model.ObjectStorageConfig) model.DeliveryResult
}

// Composer builds the notification email.
type Composer interface {
	Compose(job model.JobDescriptor, outcome model.RenderOutcome, delivery model.DeliveryResult) model.EmailDraft
}

// OnCallNotifier pages operators about infrastructure failures.
type OnCallNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) error
}

// MetricsPusher flushes buffered metrics at the end of a run.
type MetricsPusher interface {
	Push(ctx context.Context) error
}

// ServiceOptions groups dependencies for Service.
type ServiceOptions struct {
	Renderer Renderer          // Required
	Router   Router            // Required
	Composer Composer          // Required
	Mailer   core.Mailer       // Required
	Status   core.StatusClient // Required

	// WorkDir is the parent of every job-scoped working directory; empty means os.TempDir.
	WorkDir string

	Snapshots core.SnapshotStore             // Optional: status snapshot fallback
	Locker    core.JobLocker                 // Optional: per-job run lock
	OnCall    OnCallNotifier                 // Optional: isolation failure paging
	Events    core.EventPublisher            // Optional: lifecycle events
	History   core.DeliveryHistoryRepository // Optional: delivery history rows
	Metrics   statsd.Sink                    // Optional
	Pusher    MetricsPusher                  // Optional

	Logger   *slog.Logger
	Hostname func() string
	Now      func() time.Time
}

// Service is the job orchestrator.
type Service struct {
	renderer  Renderer
	router    Router
	composer  Composer
	mailer    core.Mailer
	status    core.StatusClient
	workDir   string
	snapshots core.SnapshotStore
	locker    core.JobLocker
	onCall    OnCallNotifier
	events    core.EventPublisher
	history   core.DeliveryHistoryRepository
	metrics   statsd.Sink
	pusher    MetricsPusher
	logger    *slog.Logger
	hostname  func() string
	now       func() time.Time
}

// NewService constructs a Service. It panics if a required dependency is nil.
func NewService(opts ServiceOptions) *Service {
	switch {
	case opts.Renderer == nil:
		panic("orchestrator: Renderer is required")
	case opts.Router == nil:
		panic("orchestrator: Router is required")
	case opts.Composer == nil:
		panic("orchestrator: Composer is required")
	case opts.Mailer == nil:
		panic("orchestrator: Mailer is required")
	case opts.Status == nil:
		panic("orchestrator: StatusClient is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	hostname := opts.Hostname
	if hostname == nil {
		hostname = statusreporter.WorkerName
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		renderer:  opts.Renderer,
		router:    opts.Router,
		composer:  opts.Composer,
		mailer:    opts.Mailer,
		status:    opts.Status,
		workDir:   workDir,
		snapshots: opts.Snapshots,
		locker:    opts.Locker,
		onCall:    opts.OnCall,
		events:    opts.Events,
		history:   opts.History,
		metrics:   opts.Metrics,
		pusher:    opts.Pusher,
		logger:    logger.With("component", "orchestrator"),
		hostname:  hostname,
		now:       now,
	}
}

// Result summarises one invocation.
type Result struct {
	JobID    uuid.UUID
	State    model.StateCode
	Outcome  model.RenderOutcome
	Delivery model.DeliveryResult
	Draft    model.EmailDraft
	// SendErr is the transport error, if the email could not be sent.
	SendErr  error
	Duration time.Duration
}

// ErrJobLocked is returned when another invocation of the same job holds the run lock.
var ErrJobLocked = apperrors.New(apperrors.ErrCodeConflict, "job is already running")

// Run executes job. It returns an error only when the job could not be started at
// all (invalid descriptor or held run lock); once the job is picked up every
// failure is reported through the status service and the email instead.
func (s *Service) Run(ctx context.Context, job model.JobDescriptor, runCfg model.RunConfig) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job descriptor")
	}

	logger := s.logger.With("job_id", job.ID, "report", job.ReportStem(), "format", job.OutputFormat)
	started := s.now()

	release, err := s.lock(ctx, logger, job.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	worker := s.hostname()
	reporter := statusreporter.New(statusreporter.Options{
		JobID:     job.ID,
		Requestor: job.Requestor(),
		Filename:  job.Report.Filename,
		Client:    s.status,
		Cache:     s.snapshots,
		Logger:    s.logger,
		Hostname:  func() string { return worker },
		Now:       s.now,
	})

	res := &Result{JobID: job.ID}
	s.markStatus(ctx, logger, job, func() error { return reporter.MarkProcessing(ctx) })

	dir, err := os.MkdirTemp(s.workDir, "report-"+job.ID.String()+"-")
	if err != nil {
		logger.ErrorContext(ctx, "working directory could not be created", "work_dir", s.workDir, "error", err)
		res.Outcome = model.RenderFailed(model.FailureIsolation, "the working directory could not be created")
		s.stage(metrics.StageRender, job, "", res.Outcome.Failure, 0)
	} else {
		defer s.cleanup(ctx, logger, dir)
		res.Outcome = s.render(ctx, job, dir)
	}

	if res.Outcome.Succeeded() {
		s.complete(ctx, logger, job, runCfg, reporter, res)
	} else {
		s.fail(ctx, logger, job, worker, reporter, res)
	}

	res.State = reporter.State()
	res.Duration = s.now().Sub(started)
	s.finish(ctx, logger, job, started, res)
	return res, nil
}

func (s *Service) render(ctx context.Context, job model.JobDescriptor, dir string) model.RenderOutcome {
	start := s.now()
	outcome := s.renderer.Render(ctx, model.RenderRequest{
		JobID:      job.ID,
		ReportPath: job.Report.Filename,
		Parameters: job.Report.Parameters,
		Format:     job.OutputFormat,
		WorkingDir: dir,
	})
	var err error
	if outcome.Failure != nil {
		err = outcome.Failure
	}
	s.stage(metrics.StageRender, job, "", err, s.now().Sub(start))
	return outcome
}

func (s *Service) complete(
	ctx context.Context,
	logger *slog.Logger,
	job model.JobDescriptor,
	runCfg model.RunConfig,
	reporter *statusreporter.Reporter,
	res *Result,
) {
	start := s.now()
	res.Delivery = s.router.Route(ctx, res.Outcome.ArtifactPath, job, runCfg.ObjectStorage)
	var deliverErr error
	if res.Delivery.Failed() {
		deliverErr = res.Delivery.Err
	}
	s.stage(metrics.StageDeliver, job, res.Delivery.Channel, deliverErr, s.now().Sub(start))

	res.Draft = s.composer.Compose(job, res.Outcome, res.Delivery)
	s.markStatus(ctx, logger, job, func() error {
		return reporter.MarkCompleted(ctx, filepath.Base(res.Outcome.ArtifactPath))
	})
	res.SendErr = s.send(ctx, logger, job, res.Draft)
}

func (s *Service) fail(
	ctx context.Context,
	logger *slog.Logger,
	job model.JobDescriptor,
	worker string,
	reporter *statusreporter.Reporter,
	res *Result,
) {
	failure := res.Outcome.Failure
	if failure == nil {
		failure = &model.RenderFailure{Kind: model.FailureInterop, Detail: "the render produced no outcome"}
		res.Outcome = model.RenderOutcome{Failure: failure}
	}

	if failure.Kind == model.FailureIsolation {
		s.page(ctx, logger, job, worker, failure)
	}

	res.Draft = s.composer.Compose(job, res.Outcome, model.DeliveryResult{})
	s.markStatus(ctx, logger, job, func() error { return reporter.MarkFailed(ctx, failureReason(failure)) })
	res.SendErr = s.send(ctx, logger, job, res.Draft)
}

func (s *Service) page(ctx context.Context, logger *slog.Logger, job model.JobDescriptor, worker string, failure *model.RenderFailure) {
	if s.onCall == nil {
		return
	}
	severity := notify.SeverityError
	if failure.OutOfMemory {
		severity = notify.SeverityCritical
	}
	err := s.onCall.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:        job.ID.String(),
		ReportName:   job.ReportStem(),
		OutputFormat: string(job.OutputFormat),
		Worker:       worker,
		FailureKind:  string(failure.Kind),
		OutOfMemory:  failure.OutOfMemory,
		Error:        failure.Detail,
		ErrorClass:   obserrors.Classify(failure),
		Severity:     severity,
		OccurredAt:   s.now().UTC(),
		Metadata: map[string]string{
			"template":   job.Report.Filename,
			"recipients": fmt.Sprint(len(job.Email.To) + len(job.Email.CC)),
		},
	})
	if err != nil {
		logger.WarnContext(ctx, "on-call notification incomplete", "error", err)
	}
}

func (s *Service) send(ctx context.Context, logger *slog.Logger, job model.JobDescriptor, draft model.EmailDraft) error {
	start := s.now()
	err := s.mailer.Send(ctx, draft)
	s.stage(metrics.StageSend, job, "", err, s.now().Sub(start))
	if err != nil {
		logger.ErrorContext(ctx, "notification email not sent", "recipients", len(draft.Recipients()), "error", err)
		return err
	}
	logger.InfoContext(ctx, "notification email sent", "recipients", len(draft.Recipients()), "attachment", draft.HasAttachment())
	return nil
}

func (s *Service) markStatus(ctx context.Context, logger *slog.Logger, job model.JobDescriptor, mark func() error) {
	start := s.now()
	err := mark()
	s.stage(metrics.StageStatus, job, "", err, s.now().Sub(start))
	if err != nil {
		logger.ErrorContext(ctx, "status change rejected", "error", err)
	}
}

func (s *Service) lock(ctx context.Context, logger *slog.Logger, id uuid.UUID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	ok, err := s.locker.Acquire(ctx, id)
	if err != nil {
		logger.WarnContext(ctx, "run lock unavailable; continuing without it", "error", err)
		return noop, nil
	}
	if !ok {
		logger.WarnContext(ctx, "job already running elsewhere")
		return nil, ErrJobLocked
	}
	return func() {
		// The caller's context may already be done; release on a short fresh one.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(rctx, id); err != nil {
			logger.WarnContext(ctx, "run lock release failed", "error", err)
		}
	}, nil
}

func (s *Service) cleanup(ctx context.Context, logger *slog.Logger, dir string) {
	if dir == "" || dir == "." || dir == s.workDir {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.WarnContext(ctx, "working directory not removed", "dir", dir, "error", err)
	}
}

func (s *Service) stage(stage string, job model.JobDescriptor, channel model.DeliveryChannel, err error, d time.Duration) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:    stage,
		Format:   string(job.OutputFormat),
		Channel:  string(channel),
		Result:   result,
		Duration: d,
		Err:      err,
	})
}

// finish records the terminal metrics, event and history row.
func (s *Service) finish(ctx context.Context, logger *slog.Logger, job model.JobDescriptor, started time.Time, res *Result) {
	var jobErr error
	if res.Outcome.Failure != nil {
		jobErr = res.Outcome.Failure
	}
	metrics.EmitJobOutcome(s.metrics, metrics.JobMetric{
		State:         res.State.String(),
		Format:        string(job.OutputFormat),
		Duration:      res.Duration,
		ArtifactBytes: res.artifactBytes(),
		Err:           jobErr,
	})

	if s.events != nil {
		if err := s.events.Publish(ctx, s.event(job, res)); err != nil {
			logger.WarnContext(ctx, "lifecycle event not published", "error", err)
		}
	}
	if s.history != nil {
		if err := s.history.Upsert(ctx, historyRecord(job, started, s.now(), res)); err != nil {
			logger.WarnContext(ctx, "delivery history not recorded", "error", err)
		}
	}
	if s.pusher != nil {
		if err := s.pusher.Push(ctx); err != nil {
			logger.WarnContext(ctx, "metrics push failed", "error", err)
		}
	}

	logger.InfoContext(ctx, "job finished",
		"state", res.State,
		"channel", res.Delivery.Channel,
		"duration_ms", res.Duration.Milliseconds(),
		"email_sent", res.SendErr == nil,
	)
}

func (s *Service) event(job model.JobDescriptor, res *Result) model.JobEvent {
	evt := model.JobEvent{
		ID:           uuid.New(),
		Type:         model.JobEventCompleted,
		JobID:        job.ID,
		ReportName:   job.ReportStem(),
		OutputFormat: job.OutputFormat,
		Requestor:    job.Requestor(),
		OccurredAt:   s.now().UTC(),
	}
	if f := res.Outcome.Failure; f != nil {
		evt.Type = model.JobEventFailed
		evt.FailureKind = f.Kind
		evt.Detail = f.Detail
		return evt
	}
	evt.Artifact = filepath.Base(res.Outcome.ArtifactPath)
	evt.Channel = res.Delivery.Channel
	if res.Delivery.Err != nil {
		evt.Detail = res.Delivery.Err.Error()
	}
	return evt
}

func historyRecord(job model.JobDescriptor, started, finished time.Time, res *Result) *model.DeliveryRecord {
	rec := &model.DeliveryRecord{
		JobID:        job.ID.String(),
		ReportName:   job.ReportStem(),
		OutputFormat: string(job.OutputFormat),
		State:        res.State.String(),
		Recipients:   append(append([]string{}, job.Email.To...), job.Email.CC...),
		StartedAt:    started.UTC(),
		FinishedAt:   finished.UTC(),
	}
	if f := res.Outcome.Failure; f != nil {
		kind, detail := string(f.Kind), f.Detail
		rec.FailureKind = &kind
		rec.Detail = &detail
		return rec
	}
	channel := string(res.Delivery.Channel)
	artifact := filepath.Base(res.Outcome.ArtifactPath)
	rec.Channel = &channel
	rec.ArtifactName = &artifact
	if res.Delivery.Err != nil {
		detail := res.Delivery.Err.Error()
		rec.Detail = &detail
	}
	return rec
}

func (r *Result) artifactBytes() int64 {
	if !r.Outcome.Succeeded() {
		return 0
	}
	path := r.Outcome.ArtifactPath
	if r.Delivery.Archived {
		path = r.Delivery.ArchivePath
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func failureReason(f *model.RenderFailure) string {
	switch {
	case f.OutOfMemory:
		return "Render ran out of memory: " + f.Detail
	case f.Kind == model.FailureLoad:
		return "Report template could not be loaded: " + f.Detail
	case f.Kind == model.FailureValidation:
		return "Report parameters were rejected: " + f.Detail
	case f.Kind == model.FailureEngine:
		return "Report engine failed: " + f.Detail
	default:
		return "Render infrastructure failed (" + string(f.Kind) + "): " + f.Detail
	}
}
