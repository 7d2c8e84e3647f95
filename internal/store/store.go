// Package store defines the shared-store contract the core depends
// on (spec §6) and two implementations: a Redis-backed one for
// production and an in-memory fake for tests, so the hot path stays
// testable without a live Redis -- spec §9's design note on reifying
// global store state as an explicit, fake-able collaborator.
package store

import (
	"context"
	"time"
)

// Store is the minimal key/set/hash surface spec §6's key table
// needs: strings, sets and hashes, plus the rename-based publish
// sequence component E uses to make a rebuilt set appear atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX sets key to value only if it does not already exist,
	// reporting whether the set happened, and expires it after ttl
	// (0 means no expiry). Used for the manager's liveness-guard key
	// (spec §4.E step 1), which must self-clear if a tick dies
	// without reaching the matching Delete.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	// Rename renames oldKey to newKey. It is a no-op (not an error) if
	// oldKey does not exist, matching how the manager's publish
	// sequence (spec §4.E step 6) tolerates a missing "current" set
	// on the very first cycle.
	Rename(ctx context.Context, oldKey, newKey string) error
	SUnionStore(ctx context.Context, dest string, keys ...string) error

	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}
