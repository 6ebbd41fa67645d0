package trades

import (
	"tradelane/trade-portal/trade-portal-backend/pkg/workflows"
)

// transitionTable is the single source of truth for lifecycle order.
// The first entry of each list is the inferred successor for dry runs.
var transitionTable = map[TradeStatus][]TradeStatus{
	StatusDraft:           {StatusRFQOpen, StatusClosed},
	StatusRFQOpen:         {StatusQuoted, StatusClosed},
	StatusQuoted:          {StatusContracted, StatusClosed},
	StatusContracted:      {StatusEscrowRequired, StatusClosed},
	StatusEscrowRequired:  {StatusEscrowFunded, StatusClosed},
	StatusEscrowFunded:    {StatusProduction, StatusDisputed},
	StatusProduction:      {StatusPickupScheduled, StatusDisputed},
	StatusPickupScheduled: {StatusInTransit, StatusDisputed},
	StatusInTransit:       {StatusDelivered, StatusDisputed},
	StatusDelivered:       {StatusAccepted, StatusDisputed},
	StatusAccepted:        {StatusSettled, StatusDisputed},
	StatusSettled:         {StatusClosed},
	StatusDisputed:        {StatusSettled, StatusClosed},
	StatusClosed:          {},
}

// LifecycleMachine wraps the generic state machine with trade status types
type LifecycleMachine struct {
	sm *workflows.StateMachine
}

// NewLifecycleMachine builds the trade lifecycle from the transition table
func NewLifecycleMachine() *LifecycleMachine {
	table := make(map[string][]string, len(transitionTable))
	for from, targets := range transitionTable {
		next := make([]string, len(targets))
		for i, to := range targets {
			next[i] = string(to)
		}
		table[string(from)] = next
	}
	return &LifecycleMachine{sm: workflows.NewStateMachine(table)}
}

// IsKnown reports whether status is a member of the state set
func (m *LifecycleMachine) IsKnown(status TradeStatus) bool {
	return m.sm.Knows(string(status))
}

// CanTransition checks the transition table
func (m *LifecycleMachine) CanTransition(from, to TradeStatus) bool {
	return m.sm.CanTransition(string(from), string(to))
}

// Next returns the legal successors of from, in table order
func (m *LifecycleMachine) Next(from TradeStatus) []TradeStatus {
	allowed := m.sm.GetAllowedTransitions(string(from))
	out := make([]TradeStatus, len(allowed))
	for i, s := range allowed {
		out[i] = TradeStatus(s)
	}
	return out
}

// InferNext picks the first legal successor, false when from is terminal
func (m *LifecycleMachine) InferNext(from TradeStatus) (TradeStatus, bool) {
	next, ok := m.sm.FirstTransition(string(from))
	return TradeStatus(next), ok
}
