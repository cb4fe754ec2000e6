package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewPrefixesRandomID(t *testing.T) {
	a := New("neg")
	b := New("neg")
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if !strings.HasPrefix(a, "neg-") {
		t.Fatalf("expected neg- prefix, got %s", a)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(a, "neg-")); err != nil {
		t.Fatalf("expected uuid suffix: %v", err)
	}
}

func TestNewWithoutPrefix(t *testing.T) {
	if _, err := uuid.Parse(New("")); err != nil {
		t.Fatalf("expected bare uuid: %v", err)
	}
}
