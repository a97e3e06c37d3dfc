package store

import "context"

// KeyValueStore persists string values under string keys. A cart is stored
// wholesale as one value, so implementations only need whole-value reads and
// overwrites.
type KeyValueStore interface {
	// Get returns the value stored under key. found is false when the key
	// has never been written.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key, value string) error
}
