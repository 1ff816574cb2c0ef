package cache

import (
	"context"
	"iter"

	"github.com/PoisonousPython/PluralKit/types"
)

// Cache is the capability interface all backends implement.
//
// All call sites depend only on this interface; the concrete backend is
// selected once at startup. Implementations are internally responsible for
// safe concurrent mutation and must tolerate concurrent access from an
// unbounded number of shards without external locking by callers.
type Cache interface {
	// Get returns the cached entry for (kind, id).
	//
	// Returns:
	//   - types.CacheEntry: The cached entry
	//   - error: types.ErrEntityNotFound if the entity is not cached
	Get(ctx context.Context, kind, id string) (types.CacheEntry, error)

	// Upsert stores the entry under (entry.Kind, entry.ID).
	//
	// An entry with Version 0 is assigned the next version (stored+1, or 1
	// for a new key). An entry with a positive Version is applied only if
	// Version >= the stored version (last-writer-wins); stale writes are
	// dropped without error so an out-of-order event can never overwrite
	// newer state.
	Upsert(ctx context.Context, entry types.CacheEntry) error

	// Delete removes the entry for (kind, id). Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, kind, id string) error

	// BulkGet returns a lazy, finite, restartable sequence of the cached
	// entries among ids, in the order requested. Missing entities are
	// skipped.
	BulkGet(ctx context.Context, kind string, ids []string) iter.Seq[types.CacheEntry]
}
