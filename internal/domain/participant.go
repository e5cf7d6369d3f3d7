// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxCallIDLen      = 128
	MaxDisplayNameLen = 64
)

var (
	ErrCallIDEmpty        = errors.New("call id empty")
	ErrCallIDTooLong      = errors.New("call id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// CallID is the stable identifier a participant registers under with the
// relay. It survives reconnects; the transport ConnID does not.
type CallID string

// ConnID is the ephemeral identifier of one transport connection. A
// participant gets a fresh one every time it reconnects to the relay.
type ConnID string

// Participant is a registered endpoint as the relay sees it.
type Participant struct {
	CallID      CallID `json:"call_id"`
	DisplayName string `json:"display_name"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(callID CallID, displayName string) (*Participant, error) {
	if len(callID) == 0 {
		return nil, ErrCallIDEmpty
	}
	if len(callID) > MaxCallIDLen {
		return nil, ErrCallIDTooLong
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{CallID: callID, DisplayName: displayName}, nil
}
