package util

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid, got %q: %v", id, err)
	}
	if NewID() == id {
		t.Fatal("expected distinct ids")
	}
}

func TestNewTokenLength(t *testing.T) {
	if got := len(NewToken(32)); got != 64 {
		t.Fatalf("expected 64 hex chars, got %d", got)
	}
}
