package playback

import "fmt"

// SourceState represents the lifecycle state of one attached source.
type SourceState int

const (
	// StateAttached is the initial state after a successful attach.
	StateAttached SourceState = iota
	// StateStreaming is entered on the first HaveData(Ok) for the source.
	StateStreaming
	// StateFlushing is a transient state while a flush is in progress.
	StateFlushing
	// StateEnded is entered when EndOfStream is signalled with no buffered
	// segments left to push.
	StateEnded
	// StateRemoved is the terminal state after RemoveSource.
	StateRemoved
)

// String returns the string representation of the state.
func (s SourceState) String() string {
	switch s {
	case StateAttached:
		return "Attached"
	case StateStreaming:
		return "Streaming"
	case StateFlushing:
		return "Flushing"
	case StateEnded:
		return "Ended"
	case StateRemoved:
		return "Removed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// validTransitions defines which state transitions are allowed. Remove is
// valid from any non-terminal state, so StateRemoved appears in every row
// except its own.
var validTransitions = map[SourceState][]SourceState{
	StateAttached:  {StateStreaming, StateFlushing, StateEnded, StateRemoved},
	StateStreaming: {StateFlushing, StateEnded, StateRemoved},
	StateFlushing:  {StateStreaming, StateAttached, StateRemoved},
	StateEnded:     {StateFlushing, StateRemoved},
	StateRemoved:   {}, // Terminal state, no transitions allowed
}

// CanTransitionTo checks if a transition from current state to next is valid.
func (s SourceState) CanTransitionTo(next SourceState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state.
func (s SourceState) IsTerminal() bool {
	return s == StateRemoved
}
