package types

// Topology describes the resolved cluster layout.
//
// A Topology is computed once at startup, either from static configuration or
// from the gateway-info provider, and is immutable thereafter. Changing the
// topology requires a process restart; there is no live re-partitioning.
type Topology struct {
	// TotalNodes is the number of cooperating node processes in the cluster.
	TotalNodes int `json:"total_nodes"`

	// TotalShards is the total shard count across the whole cluster.
	TotalShards int `json:"total_shards"`

	// NodeIndex is this node's position in the cluster, 0 <= NodeIndex < TotalNodes.
	NodeIndex int `json:"node_index"`

	// MaxConcurrency is the gateway-imposed limit on concurrent session
	// starts. It determines the rate limiter bucket count.
	MaxConcurrency int `json:"max_concurrency"`
}

// Validate checks topology invariants.
//
// Returns:
//   - error: ErrInvalidTopology-wrapped description, nil if valid
func (t Topology) Validate() error {
	switch {
	case t.TotalShards <= 0:
		return errInvalidTopology("total shards must be > 0")
	case t.TotalNodes <= 0:
		return errInvalidTopology("total nodes must be > 0")
	case t.NodeIndex < 0 || t.NodeIndex >= t.TotalNodes:
		return errInvalidTopology("node index must satisfy 0 <= index < total nodes")
	case t.TotalNodes > t.TotalShards:
		return errInvalidTopology("total nodes must not exceed total shards")
	case t.MaxConcurrency <= 0:
		return errInvalidTopology("max concurrency must be > 0")
	}

	return nil
}

// Range computes the contiguous shard ID range owned by this node.
//
// The boundaries use rounded division:
//
//	min = round(totalShards * nodeIndex / totalNodes)
//	max = round(totalShards * (nodeIndex+1) / totalNodes) - 1
//
// Consecutive nodes share each boundary term, so the per-node ranges telescope
// into an exact, disjoint partition of {0 .. totalShards-1} with sizes
// differing by at most one shard.
//
// Returns:
//   - ShardRange: Inclusive [Min, Max] shard range for this node
func (t Topology) Range() ShardRange {
	return ShardRange{
		Min: roundDiv(t.TotalShards*t.NodeIndex, t.TotalNodes),
		Max: roundDiv(t.TotalShards*(t.NodeIndex+1), t.TotalNodes) - 1,
	}
}

// roundDiv returns round(a/b) for non-negative a and positive b,
// rounding halves up.
func roundDiv(a, b int) int {
	return (2*a + b) / (2 * b)
}

// ShardRange is an inclusive range of shard IDs owned by a single node.
//
// Derived from the Topology at startup and never mutated.
type ShardRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Count returns the number of shard IDs in the range.
func (r ShardRange) Count() int {
	return r.Max - r.Min + 1
}

// Contains reports whether the shard ID falls inside the range.
func (r ShardRange) Contains(id int) bool {
	return id >= r.Min && id <= r.Max
}

func errInvalidTopology(reason string) error {
	return &topologyError{reason: reason}
}

type topologyError struct {
	reason string
}

func (e *topologyError) Error() string {
	return "invalid cluster topology: " + e.reason
}

func (e *topologyError) Unwrap() error {
	return ErrInvalidTopology
}
