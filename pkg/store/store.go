package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached. Rules
// treat it like any other store error and degrade to a zero-score pass.
var ErrUnavailable = errors.New("store unavailable")

// Store is the shared time-windowed key-value state used by every rule. All
// mutation is per-key atomic under concurrent access; no cross-key
// transactions are provided.
//
// Keys returns only non-expired keys and supports prefix patterns of the form
// "prefix:*". General glob matching is deliberately not implemented.
//
//go:generate mockery --name=Store --dir=. --output=./mocks --filename=store_mock.go --case=underscore --with-expecter
type Store interface {
	// Get returns the value for key, or ok=false when the key is missing or
	// past its expiry.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites the value. A zero ttl means the key never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Increment atomically adds delta to the integer value stored at key,
	// creating it at delta when absent. An existing TTL is preserved
	// unchanged across the increment.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// Delete removes the key.
	Delete(ctx context.Context, key string) error
	// Expire sets or overwrites the key's expiry. No-op when the key is
	// absent.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys enumerates non-expired keys matching a "prefix:*" pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close releases the store's resources and stops background cleanup.
	Close() error
}

// prefixOf strips the trailing wildcard from a "prefix:*" pattern. A pattern
// without a wildcard matches as an exact prefix.
func prefixOf(pattern string) string {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
