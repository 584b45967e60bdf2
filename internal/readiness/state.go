package readiness

// State is a phase of the readiness state machine.
type State int

const (
	StateLaunching State = iota
	StatePolling
	StateReady
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "LAUNCHING"
	case StatePolling:
		return "POLLING"
	case StateReady:
		return "READY"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateTimedOut || s == StateFailed
}
