package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeebo/xxh3"

	"github.com/PoisonousPython/PluralKit/internal/logging"
	"github.com/PoisonousPython/PluralKit/internal/natsutil"
	"github.com/PoisonousPython/PluralKit/types"
)

// upsertMaxRetries bounds the CAS retry loop when concurrent writers from
// different nodes race on the same key.
const upsertMaxRetries = 5

// reprobeInterval is how long the shared backend stays in pass-through mode
// after a connectivity failure before retrying the backing store.
const reprobeInterval = 5 * time.Second

// Shared is a cluster-wide cache backend over a NATS JetStream KV bucket.
//
// Writes use revision-conditional updates so that last-writer-wins by version
// holds across all node processes: an upsert is applied only if the incoming
// version is >= the stored version, and racing writers retry against the
// latest revision.
//
// If the backing store becomes unreachable the backend degrades to
// pass-through: reads return types.ErrEntityNotFound, writes are dropped, and
// the store is re-probed after a short interval. Degradation is logged once
// per outage as a warning wrapping types.ErrCacheUnavailable, never returned
// to callers.
type Shared struct {
	kv      jetstream.KeyValue
	logger  types.Logger
	metrics types.MetricsCollector

	// degradedUntil holds a unix-nano deadline; non-zero means pass-through
	// mode until the deadline passes.
	degradedUntil atomic.Int64
}

// Compile-time assertion that Shared implements Cache.
var _ Cache = (*Shared)(nil)

// NewShared creates a cluster-wide cache backend over the given KV bucket.
//
// Parameters:
//   - kv: JetStream KV bucket for entity storage
//
// Returns:
//   - *Shared: New shared cache backend
func NewShared(kv jetstream.KeyValue) *Shared {
	return &Shared{
		kv:     kv,
		logger: logging.NewNop(),
	}
}

// SetLogger sets the logger for degraded-mode warnings.
func (s *Shared) SetLogger(logger types.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the metrics collector for cache operations.
func (s *Shared) SetMetrics(m types.MetricsCollector) {
	s.metrics = m
}

// Get returns the cached entry for (kind, id).
func (s *Shared) Get(ctx context.Context, kind, id string) (types.CacheEntry, error) {
	if s.degraded() {
		s.record("get", false)
		return types.CacheEntry{}, types.ErrEntityNotFound
	}

	entry, _, err := s.fetch(ctx, kind, id)
	if err != nil {
		if errors.Is(err, types.ErrEntityNotFound) {
			s.record("get", false)
			return types.CacheEntry{}, err
		}
		s.degrade(err)
		s.record("get", false)

		return types.CacheEntry{}, types.ErrEntityNotFound
	}
	s.record("get", true)

	return entry, nil
}

// Upsert stores the entry, applying last-writer-wins by version across nodes.
func (s *Shared) Upsert(ctx context.Context, entry types.CacheEntry) error {
	if s.degraded() {
		s.record("upsert", false)
		return nil
	}

	key := s.keyFor(entry.Kind, entry.ID)

	for attempt := 0; attempt < upsertMaxRetries; attempt++ {
		stored, revision, err := s.fetch(ctx, entry.Kind, entry.ID)

		switch {
		case errors.Is(err, types.ErrEntityNotFound):
			next := entry
			if next.Version == 0 {
				next.Version = 1
			}
			data, merr := json.Marshal(next)
			if merr != nil {
				return fmt.Errorf("failed to encode cache entry %s: %w", entry.Key(), merr)
			}
			if _, cerr := s.kv.Create(ctx, key, data); cerr != nil {
				if errors.Is(cerr, jetstream.ErrKeyExists) {
					continue // Raced with another writer, re-read.
				}
				if natsutil.IsConnectivityError(cerr) {
					s.degrade(cerr)
					s.record("upsert", false)

					return nil
				}

				return fmt.Errorf("failed to create cache entry %s: %w", entry.Key(), cerr)
			}
			s.record("upsert", true)

			return nil

		case err != nil:
			if natsutil.IsConnectivityError(err) {
				s.degrade(err)
				s.record("upsert", false)

				return nil
			}

			return err

		default:
			next := entry
			switch {
			case entry.Version == 0:
				next.Version = stored.Version + 1
			case entry.Version < stored.Version:
				// Out-of-order event: never overwrite newer state.
				s.record("upsert", false)
				return nil
			}
			data, merr := json.Marshal(next)
			if merr != nil {
				return fmt.Errorf("failed to encode cache entry %s: %w", entry.Key(), merr)
			}
			if _, uerr := s.kv.Update(ctx, key, data, revision); uerr != nil {
				if natsutil.IsConnectivityError(uerr) {
					s.degrade(uerr)
					s.record("upsert", false)

					return nil
				}

				continue // Revision conflict, re-read and retry.
			}
			s.record("upsert", true)

			return nil
		}
	}

	// Persistent conflict means other writers are keeping the key newer
	// than us; by last-writer-wins our write no longer matters.
	s.record("upsert", false)

	return nil
}

// Delete removes the entry for (kind, id).
func (s *Shared) Delete(ctx context.Context, kind, id string) error {
	if s.degraded() {
		s.record("delete", false)
		return nil
	}

	if err := s.kv.Delete(ctx, s.keyFor(kind, id)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		if natsutil.IsConnectivityError(err) {
			s.degrade(err)
			s.record("delete", false)

			return nil
		}

		return fmt.Errorf("failed to delete cache entry %s/%s: %w", kind, id, err)
	}
	s.record("delete", true)

	return nil
}

// BulkGet returns a lazy sequence over the cached entries among ids.
//
// Each restart of the sequence re-reads the backing store, so a ranged-over
// sequence always reflects the store at iteration time.
func (s *Shared) BulkGet(ctx context.Context, kind string, ids []string) iter.Seq[types.CacheEntry] {
	return func(yield func(types.CacheEntry) bool) {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}

			entry, err := s.Get(ctx, kind, id)
			if err != nil {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// fetch reads and decodes an entry, returning its KV revision for CAS writes.
func (s *Shared) fetch(ctx context.Context, kind, id string) (types.CacheEntry, uint64, error) {
	kvEntry, err := s.kv.Get(ctx, s.keyFor(kind, id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return types.CacheEntry{}, 0, types.ErrEntityNotFound
		}

		return types.CacheEntry{}, 0, fmt.Errorf("failed to read cache entry %s/%s: %w", kind, id, err)
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(kvEntry.Value(), &entry); err != nil {
		return types.CacheEntry{}, 0, fmt.Errorf("failed to decode cache entry %s/%s: %w", kind, id, err)
	}

	return entry, kvEntry.Revision(), nil
}

// degraded reports whether the backend is currently in pass-through mode.
func (s *Shared) degraded() bool {
	until := s.degradedUntil.Load()
	if until == 0 {
		return false
	}
	if time.Now().UnixNano() >= until {
		// Reprobe window reached: leave degraded mode optimistically.
		if s.degradedUntil.CompareAndSwap(until, 0) {
			s.logger.Info("shared cache reprobing backing store")
			if s.metrics != nil {
				s.metrics.RecordCacheDegraded(false)
			}
		}

		return false
	}

	return true
}

// degrade enters pass-through mode after a connectivity failure. The outage
// is surfaced as a types.ErrCacheUnavailable-wrapped warning so log and hook
// consumers can match it.
func (s *Shared) degrade(err error) {
	if !natsutil.IsConnectivityError(err) {
		return
	}

	until := time.Now().Add(reprobeInterval).UnixNano()
	if s.degradedUntil.Swap(until) == 0 {
		s.logger.Warn("shared cache unreachable, degrading to pass-through",
			"error", fmt.Errorf("%w: %v", types.ErrCacheUnavailable, err),
			"reprobe_after", reprobeInterval,
		)
		if s.metrics != nil {
			s.metrics.RecordCacheDegraded(true)
		}
	}
}

// keyFor encodes (kind, id) as a KV key. Entity IDs outside the KV-safe
// character set are replaced by their xxh3 hash.
func (s *Shared) keyFor(kind, id string) string {
	return kind + "." + safeKeyComponent(id)
}

func safeKeyComponent(id string) string {
	for i := 0; i < len(id); i++ {
		c := id[i]
		safe := c == '-' || c == '_' || c == '=' ||
			(c >= '0' && c <= '9') ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z')
		if !safe {
			return "x" + strconv.FormatUint(xxh3.HashString(id), 16)
		}
	}
	if id == "" {
		return "x" + strconv.FormatUint(xxh3.HashString(id), 16)
	}

	return id
}

func (s *Shared) record(op string, hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(op, hit)
	}
}
