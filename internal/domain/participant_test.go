package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewParticipantValidation(t *testing.T) {
	if _, err := NewParticipant("alice", "Alice"); err != nil {
		t.Fatalf("valid participant rejected: %v", err)
	}
	if _, err := NewParticipant("", "Alice"); !errors.Is(err, ErrCallIDEmpty) {
		t.Fatalf("expected ErrCallIDEmpty, got %v", err)
	}
	longID := CallID(strings.Repeat("x", MaxCallIDLen+1))
	if _, err := NewParticipant(longID, ""); !errors.Is(err, ErrCallIDTooLong) {
		t.Fatalf("expected ErrCallIDTooLong, got %v", err)
	}
	longName := strings.Repeat("n", MaxDisplayNameLen+1)
	if _, err := NewParticipant("alice", longName); !errors.Is(err, ErrDisplayNameTooLong) {
		t.Fatalf("expected ErrDisplayNameTooLong, got %v", err)
	}
}

func TestPhaseTerminal(t *testing.T) {
	terminal := []Phase{PhaseEnded, PhaseRejected, PhaseFailed}
	for _, p := range terminal {
		if !p.Terminal() {
			t.Errorf("%s should be terminal", p)
		}
	}
	live := []Phase{PhaseIdle, PhaseRingingOut, PhaseRingingIn, PhaseNegotiating, PhaseActive}
	for _, p := range live {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
}
