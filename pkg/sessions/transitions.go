package sessions

// transitions is the complete table of legal state changes.
var transitions = map[State][]State{
	StateInitializing: {StateStarting, StateError, StateCancelled},
	StateStarting:     {StateReady, StateError, StateCancelled},
	StateReady:        {StateRunning, StateWaiting, StateError, StateCancelled},
	StateRunning:      {StateCompleted, StateError, StateCancelled},
	StateWaiting:      {StateRunning, StateError, StateCancelled},
	StateError:        {StateCancelled},
	StateCompleted:    {},
	StateCancelled:    {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the states reachable from from in one step.
func AllowedTransitions(from State) []State {
	return append([]State(nil), transitions[from]...)
}
