package types

import (
	"context"
	"encoding/json"
)

// Event is a decoded gateway dispatch event.
//
// Events are forwarded to the EventHandler after every entity they contain
// has been upserted into the cache, so downstream consumers may read a cache
// already warmed for the event they are handling.
type Event struct {
	// Shard is the shard ID the event arrived on.
	Shard int `json:"shard"`

	// Type is the gateway event type (e.g. "MESSAGE_CREATE").
	Type string `json:"type"`

	// Sequence is the gateway sequence number for this event. Within one
	// shard, sequences only move forward.
	Sequence int64 `json:"sequence"`

	// Entities are the cacheable entities decoded from the event payload.
	Entities []CacheEntry `json:"entities,omitempty"`

	// Data is the raw event payload.
	Data json.RawMessage `json:"data"`
}

// EventHandler receives every application-relevant event decoded from the
// gateway stream.
//
// The receiver performs business logic out of scope for this library and
// must not block the shard's control loop for long periods: handlers that
// need to do slow work should hand the event off to their own queue.
type EventHandler interface {
	// OnEvent is invoked by each shard for every dispatch event, in
	// per-shard receive order. No ordering is guaranteed across shards.
	OnEvent(ctx context.Context, evt *Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, evt *Event)

// OnEvent calls f(ctx, evt).
func (f EventHandlerFunc) OnEvent(ctx context.Context, evt *Event) {
	f(ctx, evt)
}
