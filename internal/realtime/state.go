package realtime

// ConnectionState is the observable state of the realtime connection.
// Exactly one value is active at any instant.
type ConnectionState int

const (
	// StateDisconnected means no transport is open and none is pending.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a transport open attempt is in flight.
	StateConnecting
	// StateConnected means the transport is open and the heartbeat is running.
	StateConnected
	// StateDisconnecting means an explicit Disconnect is tearing down.
	StateDisconnecting
	// StateError means the transport failed; a reconnect may be pending.
	StateError
)

// String returns the lowercase name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
