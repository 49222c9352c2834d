// Package storage provides the durable key-value stores that back the
// watchlist collection. A store holds opaque serialized blobs under
// well-known keys; the watchlist service owns the serialization format.
package storage

import "errors"

// ErrKeyNotFound is returned by Load when the key has never been saved.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the persistence contract the watchlist engine consumes.
// Implementations must make Save durable before returning.
type KeyValueStore interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Close() error
}
