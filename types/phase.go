package types

// ShardPhase represents a shard's connection lifecycle phase.
//
// Phases follow a defined progression during normal operation:
//
//	PhaseIdle → PhaseConnecting → PhaseHandshaking → PhaseReady
//
// After a transport loss or heartbeat failure:
//
//	PhaseReady → PhaseDisconnected → PhaseReconnecting → PhaseConnecting
//
// PhaseClosed is terminal and is reached only via the shutdown path or
// explicit manager teardown.
type ShardPhase int32

const (
	// PhaseIdle is the initial phase before the shard has been started.
	PhaseIdle ShardPhase = iota

	// PhaseConnecting indicates the transport connection is being opened.
	PhaseConnecting

	// PhaseHandshaking indicates an identify or resume exchange is in progress.
	PhaseHandshaking

	// PhaseReady indicates steady-state event reception.
	PhaseReady

	// PhaseDisconnected indicates transport loss or heartbeat failure;
	// the shard is deciding between resume and a fresh identify.
	PhaseDisconnected

	// PhaseReconnecting indicates the shard is waiting out its backoff delay.
	PhaseReconnecting

	// PhaseClosed is the terminal phase after graceful or forced close.
	PhaseClosed
)

// String returns the string representation of the phase.
func (p ShardPhase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseConnecting:
		return "Connecting"
	case PhaseHandshaking:
		return "Handshaking"
	case PhaseReady:
		return "Ready"
	case PhaseDisconnected:
		return "Disconnected"
	case PhaseReconnecting:
		return "Reconnecting"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
