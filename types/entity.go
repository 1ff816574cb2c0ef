package types

import (
	"context"
	"encoding/json"
)

// Entity kinds observed on the gateway stream.
//
// Kinds are free-form strings; these constants cover the entities the
// gateway dispatches for common chat-platform events.
const (
	KindGuild   = "guild"
	KindChannel = "channel"
	KindUser    = "user"
	KindMember  = "member"
	KindRole    = "role"
	KindMessage = "message"
)

// CacheEntry is a versioned snapshot of a platform entity observed on the
// gateway stream.
//
// Entries are keyed uniquely by (Kind, ID). Version is a monotonically
// increasing counter used to resolve concurrent writes from different nodes:
// last-writer-wins by version, ties broken by arrival order at the backing
// store. A key's version never decreases.
type CacheEntry struct {
	// Kind is the entity kind (e.g. "guild", "channel", "user").
	Kind string `json:"kind"`

	// ID is the platform-assigned entity identifier.
	ID string `json:"id"`

	// Payload is the raw entity document as received from the gateway or
	// the REST bootstrap fetcher.
	Payload json.RawMessage `json:"payload"`

	// Version orders concurrent writes. An Upsert with Version 0 asks the
	// backend to assign the next version (stored+1); a positive Version is
	// applied only if it is >= the stored version.
	Version int64 `json:"version"`
}

// Key returns the canonical "kind/id" cache key for the entry.
func (e CacheEntry) Key() string {
	return e.Kind + "/" + e.ID
}

// EntityFetcher seeds the cache on cold start when an entity is referenced
// before it has been observed on the stream.
//
// Implementations are REST-style request/response clients and are out of
// scope for this library; the Manager only calls FetchEntity on cache misses.
type EntityFetcher interface {
	// FetchEntity retrieves the entity document from the platform REST API.
	//
	// Parameters:
	//   - ctx: Context for cancellation and deadline
	//   - kind: Entity kind (e.g. "guild")
	//   - id: Platform entity identifier
	//
	// Returns:
	//   - json.RawMessage: Entity document
	//   - error: ErrEntityNotFound if the platform reports no such entity
	FetchEntity(ctx context.Context, kind, id string) (json.RawMessage, error)
}
