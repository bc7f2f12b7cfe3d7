package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrEmptyKey is returned for any cache call without a key.
	ErrEmptyKey = errors.New("key cannot be empty")

	// Delivery history repository sentinels.
	ErrHistoryNotConfigured = errors.New("delivery history repository not configured")
	ErrHistoryNotFound      = errors.New("delivery history not found")
	ErrJobIDRequired        = errors.New("job_id is required")
)
