package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	set := NewPauseSet([]string{" Voter ", ""})
	if err := Guard(set, "voter"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused voter, got %v", err)
	}
	if err := Guard(set, "escrow"); err != nil {
		t.Fatalf("escrow should be live: %v", err)
	}
	if err := Guard(nil, "voter"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
