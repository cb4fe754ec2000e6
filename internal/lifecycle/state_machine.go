// Package lifecycle holds the allowed status transitions for negotiations
// and transactions.
package lifecycle

import (
	"strings"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

// StateMachine enforces status transitions for one record type.
type StateMachine struct {
	name               string
	allowedTransitions map[string][]string
}

// NewTransactionMachine returns the transaction flow. Cancellation is only
// reachable before shipping; disputes only after.
func NewTransactionMachine() *StateMachine {
	return &StateMachine{
		name: "transaction",
		allowedTransitions: map[string][]string{
			domain.TxPending:   {domain.TxConfirmed, domain.TxCancelled},
			domain.TxConfirmed: {domain.TxInTransit, domain.TxCancelled},
			domain.TxInTransit: {domain.TxDelivered, domain.TxDisputed},
			domain.TxDelivered: {domain.TxDisputed},
			domain.TxDisputed:  {domain.TxResolved},
			domain.TxCancelled: {},
			domain.TxResolved:  {},
		},
	}
}

// NewNegotiationMachine returns the negotiation flow. Every state other than
// active is terminal.
func NewNegotiationMachine() *StateMachine {
	return &StateMachine{
		name: "negotiation",
		allowedTransitions: map[string][]string{
			domain.NegotiationActive: {
				domain.NegotiationAccepted,
				domain.NegotiationRejected,
				domain.NegotiationExpired,
				domain.NegotiationWithdrawn,
			},
			domain.NegotiationAccepted:  {},
			domain.NegotiationRejected:  {},
			domain.NegotiationExpired:   {},
			domain.NegotiationWithdrawn: {},
		},
	}
}

// CanTransition checks if a status transition is allowed.
func (sm *StateMachine) CanTransition(from, to string) bool {
	for _, allowedTo := range sm.allowedTransitions[from] {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the allowed next statuses for a given status.
func (sm *StateMachine) AllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether no transition leaves status.
func (sm *StateMachine) IsTerminal(status string) bool {
	allowed, exists := sm.allowedTransitions[status]
	return exists && len(allowed) == 0
}

// Check returns a 400 domain error wrapping ErrInvalidTransition when the
// move is not allowed. The message names the moves that are still open.
func (sm *StateMachine) Check(from, to string) error {
	if sm.CanTransition(from, to) {
		return nil
	}
	if sm.IsTerminal(from) {
		return domain.BadRequest(domain.ErrInvalidTransition, "%s is already %s", sm.name, from)
	}
	allowed := sm.AllowedTransitions(from)
	if len(allowed) == 0 {
		return domain.BadRequest(domain.ErrInvalidTransition, "%s has unknown status %q", sm.name, from)
	}
	return domain.BadRequest(domain.ErrInvalidTransition, "%s cannot move from %s to %s (next: %s)",
		sm.name, from, to, strings.Join(allowed, ", "))
}
