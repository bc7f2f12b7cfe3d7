// Package core defines the ports of the report pipeline and the small cache-backed
// services built directly on them.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// DeleteIfValue atomically removes a key only while it still holds value.
	// Returns true if the key was deleted.
	DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// RunLockService implements JobLocker on top of a CacheRepository. The lock value is
// an owner token unique to this process so that an expired-and-retaken lock is never
// released by the previous holder.
type RunLockService struct {
	cache CacheRepository
	ttl   time.Duration
	owner []byte
}

// RunLockServiceOptions bundles dependencies for NewRunLockService.
type RunLockServiceOptions struct {
	Cache CacheRepository
	TTL   time.Duration
	// Owner identifies this process; a random token is generated when empty.
	Owner string
}

// NewRunLockService creates a new RunLockService.
func NewRunLockService(opts RunLockServiceOptions) *RunLockService {
	if opts.Cache == nil {
		panic("core: RunLockService requires a cache")
	}
	owner := opts.Owner
	if owner == "" {
		owner = uuid.NewString()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &RunLockService{cache: opts.Cache, ttl: ttl, owner: []byte(owner)}
}

// Acquire takes the run lock for a job.
func (s *RunLockService) Acquire(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := s.cache.SetIfNotExists(ctx, runLockKey(jobID), s.owner, s.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release drops the run lock if this process still owns it.
func (s *RunLockService) Release(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.cache.DeleteIfValue(ctx, runLockKey(jobID), s.owner); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func runLockKey(jobID uuid.UUID) string {
	return "job:lock:" + jobID.String()
}

// StatusSnapshotCache implements SnapshotStore on top of a CacheRepository.
type StatusSnapshotCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// NewStatusSnapshotCache creates a snapshot cache whose entries expire after ttl.
func NewStatusSnapshotCache(cache CacheRepository, ttl time.Duration) *StatusSnapshotCache {
	if cache == nil {
		panic("core: StatusSnapshotCache requires a cache")
	}
	return &StatusSnapshotCache{cache: cache, ttl: ttl}
}

// LoadSnapshot returns the cached snapshot, or nil if none is stored.
func (c *StatusSnapshotCache) LoadSnapshot(ctx context.Context, id uuid.UUID) (*model.StatusSnapshot, error) {
	raw, err := c.cache.Get(ctx, snapshotKey(id))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var rec model.StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	snap, err := rec.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

// StoreSnapshot caches snap, replacing any previous entry.
func (c *StatusSnapshotCache) StoreSnapshot(ctx context.Context, snap model.StatusSnapshot) error {
	raw, err := json.Marshal(model.NewStatusRecord(snap))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.cache.Set(ctx, snapshotKey(snap.ID), raw, c.ttl)
}

func snapshotKey(id uuid.UUID) string {
	return "status:snapshot:" + id.String()
}
