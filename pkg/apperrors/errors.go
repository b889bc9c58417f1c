package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrSnapshotRequired = errors.New("schema snapshot is required")
	ErrCacheExpired     = errors.New("cache entry expired")
	ErrNoResponse       = errors.New("empty model response")
)
