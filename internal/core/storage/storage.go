// Package storage defines the uniform key/value backend used by the
// credential vault and the schedule store. Implementations range from an
// in-memory map to a remote HTTP object store; callers depend only on the
// Backend interface.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a minimal key/value store keyed by opaque byte-string keys.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}
