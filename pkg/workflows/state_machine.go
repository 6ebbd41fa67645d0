package workflows

// StateMachine enforces status transitions against an ordered adjacency table.
// The order of each allowed list is preserved; FirstTransition relies on it.
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a new state machine with allowed transitions.
// States with an empty list are terminal.
func NewStateMachine(transitions map[string][]string) *StateMachine {
	allowed := make(map[string][]string, len(transitions))
	for from, to := range transitions {
		allowed[from] = append([]string(nil), to...)
	}
	return &StateMachine{allowedTransitions: allowed}
}

// Knows reports whether status appears as a source state in the table
func (sm *StateMachine) Knows(status string) bool {
	_, exists := sm.allowedTransitions[status]
	return exists
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return append([]string(nil), allowed...)
}

// FirstTransition returns the first listed successor of from.
func (sm *StateMachine) FirstTransition(from string) (string, bool) {
	allowed := sm.allowedTransitions[from]
	if len(allowed) == 0 {
		return "", false
	}
	return allowed[0], true
}

// IsTerminal reports whether from has no outgoing transitions.
func (sm *StateMachine) IsTerminal(from string) bool {
	return len(sm.allowedTransitions[from]) == 0
}
