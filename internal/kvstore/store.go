// Package kvstore provides the string key-value capability backing session
// persistence. Writes are best-effort: Set never panics and reports capacity
// or backend failures as false, which callers surface as a warning rather
// than an error.
package kvstore

import "context"

// Store is the capability set the persistence gateway depends on. Every
// write is independent per key; there is no batch or transaction.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key. Failures (capacity, backend errors) are
	// swallowed and reported as false.
	Set(ctx context.Context, key, value string) bool

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
