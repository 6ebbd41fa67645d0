package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newProjectMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"DRAFT":     {"SUBMITTED", "CANCELLED"},
		"SUBMITTED": {"APPROVED"},
		"APPROVED":  {},
		"CANCELLED": {},
	})
}

func TestCanTransition(t *testing.T) {
	sm := newProjectMachine()

	assert.True(t, sm.CanTransition("DRAFT", "SUBMITTED"))
	assert.True(t, sm.CanTransition("DRAFT", "CANCELLED"))
	assert.False(t, sm.CanTransition("DRAFT", "APPROVED"))
	assert.False(t, sm.CanTransition("APPROVED", "DRAFT"))
	assert.False(t, sm.CanTransition("UNKNOWN", "DRAFT"))
}

func TestFirstTransitionFollowsDeclaredOrder(t *testing.T) {
	sm := newProjectMachine()

	next, ok := sm.FirstTransition("DRAFT")
	assert.True(t, ok)
	assert.Equal(t, "SUBMITTED", next)

	_, ok = sm.FirstTransition("APPROVED")
	assert.False(t, ok)
	assert.True(t, sm.IsTerminal("APPROVED"))
	assert.False(t, sm.IsTerminal("SUBMITTED"))
}

func TestGetAllowedTransitionsReturnsCopy(t *testing.T) {
	sm := newProjectMachine()

	allowed := sm.GetAllowedTransitions("DRAFT")
	allowed[0] = "MUTATED"

	assert.Equal(t, []string{"SUBMITTED", "CANCELLED"}, sm.GetAllowedTransitions("DRAFT"))
	assert.Empty(t, sm.GetAllowedTransitions("MISSING"))
	assert.True(t, sm.Knows("APPROVED"))
	assert.False(t, sm.Knows("MISSING"))
}
