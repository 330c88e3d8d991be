package state

import (
	"errors"
)

// ErrKeyNotFound indicates that a requested key does not exist in the state store.
var ErrKeyNotFound = errors.New("key not found in state store")

// StateReader defines the read-only interface for accessing pass state.
// Implementations must be thread-safe.
type StateReader interface {
	// Get retrieves the value associated with the given key.
	Get(key string) (interface{}, bool)

	// GetAll returns a shallow copy of the entire state map.
	GetAll() map[string]interface{}
}

// Store holds the bookkeeping of one scheduling pass (task statuses and
// errors). It is not a persistence layer: completeness is always decided by
// checking task outputs, never by what a store remembers.
type Store interface {
	StateReader

	// Set stores value under key, overwriting any existing value.
	Set(key string, value interface{}) error

	// Delete removes key. It returns ErrKeyNotFound if the key does not exist.
	Delete(key string) error

	// Load overwrites the current state with the provided map.
	Load(data map[string]interface{}) error

	// Close releases any resources held by the store.
	Close() error
}
