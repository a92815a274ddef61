package probeserver

// State is the lifecycle position of a Server.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// canStart reports whether Start is legal from s.
func (s State) canStart() bool { return s == StateNotStarted || s == StateStopped }
