// Package kv provides the key-value storage backend for the board.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for keys that do not exist or have expired.
var ErrNotFound = errors.New("key not found")

// Store is the key-value collaborator shared by the board and the throttle.
// It offers plain get/put/delete with optional per-key expiry; there are no
// transactions and no compare-and-swap, so multi-key operations built on top
// of it are not atomic.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Put stores value at key. A ttl of zero means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
