package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestStatusCodeMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", BadRequest(nil, "amount must be positive"), http.StatusBadRequest},
		{"forbidden", Forbidden(ErrNotParticipant, "not yours"), http.StatusForbidden},
		{"not found", NotFound("listing %s not found", "lst-1"), http.StatusNotFound},
		{"conflict", Conflict(ErrStaleWrite, "retry"), http.StatusConflict},
		{"rounds", TooManyRequests(ErrTooManyRounds, "limit"), http.StatusTooManyRequests},
		{"wrapped", fmt.Errorf("accept: %w", BadRequest(ErrNegotiationExpired, "expired")), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestErrorUnwrapsToSentinel(t *testing.T) {
	err := BadRequest(ErrNegotiationExpired, "negotiation %s expired", "neg-1")
	if !errors.Is(err, ErrNegotiationExpired) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if err.Error() != "negotiation neg-1 expired" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if BadRequest(nil, "").Error() != ErrValidation.Error() {
		t.Fatalf("expected sentinel text when message is empty")
	}
}

func TestNegotiationIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := Negotiation{Status: NegotiationActive, ExpiresAt: now}
	if !n.IsExpired(now) {
		t.Fatalf("expected negotiation to be expired at its deadline")
	}
	if n.IsExpired(now.Add(-time.Second)) {
		t.Fatalf("expected negotiation to be live before its deadline")
	}
	n.Status = NegotiationAccepted
	if n.IsExpired(now.Add(time.Hour)) {
		t.Fatalf("terminal negotiations never report expired")
	}
}
