package mediabridge

// SessionState represents the lifecycle state of a bridge.
//
// Transitions are monotonic with one exception: Started and OnHold
// toggle freely. Closed is terminal; every operation after Closed is a
// safe no-op.
type SessionState int

const (
	// StateCreated is the state after construction, before Start.
	StateCreated SessionState = iota
	// StateStarted indicates the session is live.
	StateStarted
	// StateOnHold indicates the hold substitutes are feeding the
	// transport instead of the real capture endpoints.
	StateOnHold
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateOnHold:
		return "on_hold"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
