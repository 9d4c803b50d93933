package transport

// State is the connection lifecycle state of a Transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRetryPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetryPending:
		return "retry_pending"
	default:
		return "unknown"
	}
}
