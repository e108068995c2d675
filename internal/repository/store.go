package repository

import (
	"context"
	"errors"
)

// ErrStale is returned by CompareAndSet when the stored value is not the one
// the caller expected.
var ErrStale = errors.New("repository: stored value changed")

// KeyValueStore is the single-record storage contract the session adapter
// persists through. Delete on a missing key is not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// CompareAndSet writes value only if key still holds *prev, or is absent
	// when prev is nil. Otherwise it returns ErrStale and writes nothing.
	CompareAndSet(ctx context.Context, key string, prev *string, value string) error
}

// matches reports whether the current record is the one prev describes.
func matches(prev *string, cur string, found bool) bool {
	if prev == nil {
		return !found
	}
	return found && cur == *prev
}
