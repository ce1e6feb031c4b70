package subscriber

// State is the connection state of a Session.
type State int32

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lower-case state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateObserver is notified on every state transition.
type StateObserver interface {
	SessionState(state State)
}
