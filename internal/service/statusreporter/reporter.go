// Package statusreporter keeps the external status service informed about one job.
package statusreporter

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
)

// Options groups dependencies for Reporter.
type Options struct {
	JobID     uuid.UUID          // Required
	Requestor string             // Recorded on every snapshot
	Filename  string             // Initial filename, replaced by MarkCompleted
	Client    core.StatusClient  // Required
	Cache     core.SnapshotStore // Optional: fallback when the status service is unreachable
	Logger    *slog.Logger

	// Hostname and PID default to the machine FQDN and os.Getpid.
	Hostname func() string
	PID      func() int
	Now      func() time.Time
}

// Reporter drives one job through Processing to a terminal state. Each Mark call
// fetches the stored snapshot, applies the change and pushes it back before
// returning. Status service errors are logged, never returned.
type Reporter struct {
	jobID     uuid.UUID
	requestor string
	client    core.StatusClient
	cache     core.SnapshotStore
	logger    *slog.Logger
	worker    string
	pid       func() int
	now       func() time.Time

	mu       sync.Mutex
	current  model.StateCode
	start    time.Time
	filename string
}

// New constructs a Reporter. It panics on a missing job id or client.
func New(opts Options) *Reporter {
	if opts.JobID == uuid.Nil {
		panic("statusreporter: JobID is required")
	}
	if opts.Client == nil {
		panic("statusreporter: StatusClient is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		jobID:     opts.JobID,
		requestor: opts.Requestor,
		filename:  opts.Filename,
		client:    opts.Client,
		cache:     opts.Cache,
		logger:    logger.With("component", "status_reporter", "job_id", opts.JobID),
		pid:       opts.PID,
		now:       opts.Now,
		current:   model.StateQueued,
	}
	hostname := opts.Hostname
	if hostname == nil {
		hostname = WorkerName
	}
	r.worker = hostname()
	if r.pid == nil {
		r.pid = os.Getpid
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// State returns the last state this reporter moved the job to.
func (r *Reporter) State() model.StateCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// MarkProcessing records that this process picked the job up.
func (r *Reporter) MarkProcessing(ctx context.Context) error {
	return r.transition(ctx, model.StateProcessing, func(*model.StatusSnapshot) model.State {
		r.start = r.now()
		return model.Processing{Start: r.start, Worker: r.worker, PID: r.pid()}
	}, "")
}

// MarkCompleted records success and the delivered artifact's file name.
func (r *Reporter) MarkCompleted(ctx context.Context, filename string) error {
	return r.transition(ctx, model.StateCompleted, func(prior *model.StatusSnapshot) model.State {
		return model.Completed{Start: r.startFrom(prior), End: r.now(), Worker: r.worker}
	}, filename)
}

// MarkFailed records failure and a human-readable reason.
func (r *Reporter) MarkFailed(ctx context.Context, reason string) error {
	return r.transition(ctx, model.StateFailed, func(prior *model.StatusSnapshot) model.State {
		return model.Failed{Start: r.startFrom(prior), End: r.now(), Worker: r.worker, Reason: reason}
	}, "")
}

func (r *Reporter) transition(
	ctx context.Context,
	to model.StateCode,
	build func(prior *model.StatusSnapshot) model.State,
	filename string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !model.CanTransition(r.current, to) {
		r.logger.WarnContext(ctx, "status transition rejected", "from", r.current, "to", to)
		return model.ErrInvalidTransition
	}

	prior := r.load(ctx)
	snap := model.StatusSnapshot{
		ID:        r.jobID,
		Requestor: r.requestor,
		Filename:  r.filename,
	}
	if prior != nil {
		if snap.Requestor == "" {
			snap.Requestor = prior.Requestor
		}
		if snap.Filename == "" {
			snap.Filename = prior.Filename
		}
	}
	if filename != "" {
		snap.Filename = filename
		r.filename = filename
	}
	snap.State = build(prior)
	r.current = to

	if err := r.client.Push(ctx, snap); err != nil {
		r.logger.ErrorContext(ctx, "status push failed", "state", to, "error", err)
	} else {
		r.logger.InfoContext(ctx, "status updated", "state", to, "worker", model.WorkerOf(snap.State))
	}
	r.store(ctx, snap)
	return nil
}

// load returns the stored snapshot from the status service, falling back to the local
// cache. A missing record is not an error.
func (r *Reporter) load(ctx context.Context) *model.StatusSnapshot {
	snap, err := r.client.Get(ctx, r.jobID)
	if err == nil {
		return snap
	}
	if apperrors.IsNotFound(err) {
		r.logger.DebugContext(ctx, "no stored status")
	} else {
		r.logger.WarnContext(ctx, "status fetch failed", "error", err)
	}
	if r.cache == nil {
		return nil
	}
	cached, cerr := r.cache.LoadSnapshot(ctx, r.jobID)
	if cerr != nil {
		r.logger.WarnContext(ctx, "cached status unavailable", "error", cerr)
		return nil
	}
	return cached
}

func (r *Reporter) store(ctx context.Context, snap model.StatusSnapshot) {
	if r.cache == nil {
		return
	}
	if err := r.cache.StoreSnapshot(ctx, snap); err != nil {
		r.logger.WarnContext(ctx, "status cache write failed", "error", err)
	}
}

func (r *Reporter) startFrom(prior *model.StatusSnapshot) time.Time {
	if !r.start.IsZero() {
		return r.start
	}
	if prior != nil {
		return model.StartTime(prior.State)
	}
	return time.Time{}
}

// WorkerName returns the upper-cased fully qualified host name, falling back to
// the short host name when DNS has nothing better.
func WorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "UNKNOWN"
	}
	if !strings.Contains(host, ".") {
		if cname, err := net.LookupCNAME(host); err == nil {
			if fqdn := strings.TrimSuffix(cname, "."); fqdn != "" {
				host = fqdn
			}
		}
	}
	return strings.ToUpper(host)
}

// IsInvalidTransition reports whether err is a rejected status change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, model.ErrInvalidTransition)
}
