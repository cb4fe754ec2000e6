package lifecycle

import (
	"errors"
	"net/http"
	"testing"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

func TestTransactionMachineAllowsForwardFlow(t *testing.T) {
	sm := NewTransactionMachine()
	path := []string{domain.TxPending, domain.TxConfirmed, domain.TxInTransit, domain.TxDelivered, domain.TxDisputed, domain.TxResolved}
	for i := 0; i+1 < len(path); i++ {
		if !sm.CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestTransactionMachineRejectsOutOfOrderMoves(t *testing.T) {
	sm := NewTransactionMachine()
	cases := [][2]string{
		{domain.TxPending, domain.TxInTransit},
		{domain.TxConfirmed, domain.TxPending},
		{domain.TxDelivered, domain.TxDelivered},
		{domain.TxInTransit, domain.TxCancelled},
		{domain.TxPending, domain.TxDisputed},
		{domain.TxCancelled, domain.TxConfirmed},
		{domain.TxResolved, domain.TxDisputed},
		{"unknown", domain.TxConfirmed},
	}
	for _, c := range cases {
		if sm.CanTransition(c[0], c[1]) {
			t.Fatalf("expected %s -> %s to be rejected", c[0], c[1])
		}
	}

	err := sm.Check(domain.TxPending, domain.TxInTransit)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if domain.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", domain.StatusCode(err))
	}
}

func TestNegotiationMachineTerminalStates(t *testing.T) {
	sm := NewNegotiationMachine()
	for _, status := range []string{domain.NegotiationAccepted, domain.NegotiationRejected, domain.NegotiationExpired, domain.NegotiationWithdrawn} {
		if !sm.CanTransition(domain.NegotiationActive, status) {
			t.Fatalf("expected active -> %s", status)
		}
		if !sm.IsTerminal(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
		if sm.CanTransition(status, domain.NegotiationActive) {
			t.Fatalf("expected %s to stay terminal", status)
		}
	}
	if sm.IsTerminal(domain.NegotiationActive) {
		t.Fatalf("active is not terminal")
	}
	if got := sm.AllowedTransitions("missing"); len(got) != 0 {
		t.Fatalf("expected no transitions for unknown status, got %v", got)
	}
}

func TestCheckMessageNamesOpenMoves(t *testing.T) {
	sm := NewTransactionMachine()

	cases := map[[2]string]string{
		{domain.TxPending, domain.TxInTransit}:   "transaction cannot move from pending to in_transit (next: confirmed, cancelled)",
		{domain.TxCancelled, domain.TxConfirmed}: "transaction is already cancelled",
		{"unknown", domain.TxConfirmed}:          `transaction has unknown status "unknown"`,
	}
	for move, want := range cases {
		err := sm.Check(move[0], move[1])
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("%v: expected ErrInvalidTransition, got %v", move, err)
		}
		if err.Error() != want {
			t.Fatalf("%v: expected %q, got %q", move, want, err.Error())
		}
	}

	if err := NewNegotiationMachine().Check(domain.NegotiationExpired, domain.NegotiationAccepted); err == nil || err.Error() != "negotiation is already expired" {
		t.Fatalf("expected terminal negotiation message, got %v", err)
	}
}
