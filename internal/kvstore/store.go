// Package kvstore is the key-value store the broker keeps all of its state in.
package kvstore

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

var (
	// ErrNotFound is returned by Get when the key does not exist or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable wraps transport failures talking to the backend.
	ErrUnavailable = errors.New("store unavailable")
)

// NoExpiry stores a value without a TTL.
const NoExpiry time.Duration = 0

// Store is a string key-value store with optional per-key expiry.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key. A ttl of NoExpiry keeps it until overwritten.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
