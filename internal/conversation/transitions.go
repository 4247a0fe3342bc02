package conversation

// validTransitions contains the permitted forward transitions of the conversation.
// Termination (session deletion) is reachable from every state and is therefore
// not listed here.
var validTransitions = map[State][]State{
	StateAwaitingDescription: {
		StateAwaitingDescription,
		StateAwaitingLocation,
	},
	StateAwaitingLocation: {
		StateAwaitingSelection,
	},
	StateAwaitingSelection: {
		StateAwaitingSelection,
		StateAwaitingConfirmation,
	},
	StateAwaitingConfirmation: {},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
