package pluralkit

import "github.com/PoisonousPython/PluralKit/types"

// Re-export types from the internal types package.
//
// This file provides a stable, backward-compatible public API for the library's
// core types and interfaces. It uses type aliases to re-export definitions
// from the `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal packages
// to depend on `types` without depending on the root `pluralkit` package,
// while still providing a convenient `pluralkit.Topology`, `pluralkit.Event`,
// etc. for users.
type (
	Topology   = types.Topology
	ShardRange = types.ShardRange
	ShardPhase = types.ShardPhase
	CacheEntry = types.CacheEntry
	Event      = types.Event
)

// Re-export interfaces from the internal types package for convenience.
type (
	EventHandler        = types.EventHandler
	EventHandlerFunc    = types.EventHandlerFunc
	EntityFetcher       = types.EntityFetcher
	GatewayInfoProvider = types.GatewayInfoProvider
	MetricsCollector    = types.MetricsCollector
	Logger              = types.Logger
	Hooks               = types.Hooks
)

// Re-export ShardPhase constants from the internal types package.
const (
	PhaseIdle         = types.PhaseIdle
	PhaseConnecting   = types.PhaseConnecting
	PhaseHandshaking  = types.PhaseHandshaking
	PhaseReady        = types.PhaseReady
	PhaseDisconnected = types.PhaseDisconnected
	PhaseReconnecting = types.PhaseReconnecting
	PhaseClosed       = types.PhaseClosed
)
