package conversation

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{name: "description re-prompt stays", from: StateAwaitingDescription, to: StateAwaitingDescription, expected: true},
		{name: "description to location", from: StateAwaitingDescription, to: StateAwaitingLocation, expected: true},
		{name: "location to selection", from: StateAwaitingLocation, to: StateAwaitingSelection, expected: true},
		{name: "selection re-prompt stays", from: StateAwaitingSelection, to: StateAwaitingSelection, expected: true},
		{name: "selection to confirmation", from: StateAwaitingSelection, to: StateAwaitingConfirmation, expected: true},
		{name: "description straight to selection invalid", from: StateAwaitingDescription, to: StateAwaitingSelection, expected: false},
		{name: "location back to description invalid", from: StateAwaitingLocation, to: StateAwaitingDescription, expected: false},
		{name: "confirmation to selection invalid", from: StateAwaitingConfirmation, to: StateAwaitingSelection, expected: false},
		{name: "confirmation to location invalid", from: StateAwaitingConfirmation, to: StateAwaitingLocation, expected: false},
		{name: "unknown state invalid", from: State("unknown"), to: StateAwaitingLocation, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}
