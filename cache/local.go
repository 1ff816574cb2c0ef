package cache

import (
	"context"
	"iter"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/PoisonousPython/PluralKit/types"
)

// Local is an in-process cache backend.
//
// Safe for concurrent use by all shards of this node. Version resolution is
// atomic per key via the underlying map's compute primitive, so concurrent
// upserts from different shards can never regress a key's version.
type Local struct {
	entries *xsync.MapOf[string, types.CacheEntry]
	metrics types.MetricsCollector
}

// Compile-time assertion that Local implements Cache.
var _ Cache = (*Local)(nil)

// NewLocal creates a new in-process cache backend.
func NewLocal() *Local {
	return &Local{
		entries: xsync.NewMapOf[string, types.CacheEntry](),
	}
}

// SetMetrics sets the metrics collector for cache operations.
//
// Optional. If not set, metrics are not recorded.
func (l *Local) SetMetrics(m types.MetricsCollector) {
	l.metrics = m
}

// Get returns the cached entry for (kind, id).
func (l *Local) Get(_ context.Context, kind, id string) (types.CacheEntry, error) {
	entry, ok := l.entries.Load(entryKey(kind, id))
	l.record("get", ok)
	if !ok {
		return types.CacheEntry{}, types.ErrEntityNotFound
	}

	return entry, nil
}

// Upsert stores the entry, applying last-writer-wins by version.
func (l *Local) Upsert(_ context.Context, entry types.CacheEntry) error {
	applied := false
	l.entries.Compute(entry.Key(), func(old types.CacheEntry, loaded bool) (types.CacheEntry, bool) {
		next := entry
		switch {
		case !loaded:
			if next.Version == 0 {
				next.Version = 1
			}
		case entry.Version == 0:
			next.Version = old.Version + 1
		case entry.Version < old.Version:
			// Stale write: keep the stored entry.
			return old, false
		}
		applied = true

		return next, false
	})
	l.record("upsert", applied)

	return nil
}

// Delete removes the entry for (kind, id).
func (l *Local) Delete(_ context.Context, kind, id string) error {
	l.entries.Delete(entryKey(kind, id))
	l.record("delete", true)

	return nil
}

// BulkGet returns a lazy sequence over the cached entries among ids.
//
// The sequence is restartable: ranging over it twice re-reads the map.
func (l *Local) BulkGet(ctx context.Context, kind string, ids []string) iter.Seq[types.CacheEntry] {
	return func(yield func(types.CacheEntry) bool) {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}

			entry, ok := l.entries.Load(entryKey(kind, id))
			l.record("bulk_get", ok)
			if !ok {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

func (l *Local) record(op string, hit bool) {
	if l.metrics != nil {
		l.metrics.RecordCacheOperation(op, hit)
	}
}

func entryKey(kind, id string) string {
	return kind + "/" + id
}
