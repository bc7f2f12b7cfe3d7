package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/domain/model"
)

// This file contains the ports (hexagonal architecture) the report pipeline depends on.
// Adapters under internal/adapters and internal/data implement them; services depend on
// these interfaces, never on the concrete adapters.

// StatusClient talks to the external job status service.
type StatusClient interface {
	// Get returns the stored snapshot for a job. A missing record is reported as an
	// errors.ErrCodeNotFound AppError.
	Get(ctx context.Context, id uuid.UUID) (*model.StatusSnapshot, error)
	// Push replaces the stored snapshot.
	Push(ctx context.Context, snap model.StatusSnapshot) error
}

// SnapshotStore keeps a local copy of the last snapshot pushed for a job so that a
// later state change can still be built when the status service is unreachable.
type SnapshotStore interface {
	// LoadSnapshot returns nil without error when nothing is stored.
	LoadSnapshot(ctx context.Context, id uuid.UUID) (*model.StatusSnapshot, error)
	StoreSnapshot(ctx context.Context, snap model.StatusSnapshot) error
}

// JobLocker prevents two invocations of the same job from running at once.
type JobLocker interface {
	// Acquire returns false without error when another process holds the lock.
	Acquire(ctx context.Context, jobID uuid.UUID) (bool, error)
	Release(ctx context.Context, jobID uuid.UUID) error
}

// RenderBoundary is one isolated render round trip. Render may be called once.
type RenderBoundary interface {
	// Render always returns a classified outcome; boundary faults are reported as
	// isolation or interop failures rather than errors.
	Render(ctx context.Context, req model.RenderRequest) model.RenderOutcome
	// Close tears the boundary down. It must be safe to call more than once.
	Close() error
}

// BoundaryFactory creates a fresh fault boundary for each render.
type BoundaryFactory interface {
	Open(ctx context.Context) (RenderBoundary, error)
}

// UploadRequest describes one artifact upload.
type UploadRequest struct {
	Storage   model.ObjectStorageConfig
	Key       string
	Path      string
	Metadata  map[string]string
	Retention time.Duration
}

// UploadReceipt is what the recipient needs to fetch an uploaded artifact.
type UploadReceipt struct {
	Link      string
	ExpiresAt time.Time
}

// ObjectStore uploads artifacts and issues time-limited shared links.
type ObjectStore interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadReceipt, error)
}

// Mailer delivers a composed notification.
type Mailer interface {
	Send(ctx context.Context, draft model.EmailDraft) error
}

// EventPublisher publishes job lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.JobEvent) error
}

// DeliveryHistoryRepository persists one row per job invocation.
type DeliveryHistoryRepository interface {
	Upsert(ctx context.Context, rec *model.DeliveryRecord) error
	GetByJobID(ctx context.Context, jobID string) (*model.DeliveryRecord, error)
}
