// Package storage defines the byte-level key-value store the credential
// vault and session manager persist through, plus its two implementations:
// a sqlite-backed durable scope and an in-memory ephemeral scope.
package storage

import "context"

// Store is a byte-level key-value store.
//
// Contract:
//   - Get returns (nil, nil) when the key does not exist.
//   - Delete on a missing key is not an error.
//   - Keys enumerates all present keys in unspecified order.
//   - Clear removes everything.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}
