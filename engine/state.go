package engine

// State is the lifecycle state of an engine.
type State int

// The engine lifecycle: Constructed → Running ⇄ Paused → Stopped.
// Stopped is terminal.
const (
	StateConstructed State = iota
	StateRunning
	StatePaused
	StateStopped
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	}

	return "unknown"
}
