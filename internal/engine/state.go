package engine

import "fmt"

// State is the run-loop state of an App.
type State int32

const (
	// StateReady means no run is active. Queued items wait for Run.
	StateReady State = iota
	// StateRunning means the loop is dequeuing and invoking.
	StateRunning
	// StateStopping means a stop was requested; the in-flight item finishes
	// and the loop returns to StateReady.
	StateStopping
	// StateTerminated means the loop was halted by Terminate or by an error.
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name for JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type signal int32

const (
	signalNone signal = iota
	signalStop
	signalTerminate
)
