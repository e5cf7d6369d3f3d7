package core

import "errors"

// Shared failure taxonomy for the call engine. Everything here is handled
// inside the session layer; callers only ever see these as return values or
// notice events, never as panics.
var (
	ErrMediaAccessDenied = errors.New("media access denied")
	ErrNoDevice          = errors.New("no audio input device available")
	ErrSignalingDown     = errors.New("signaling transport not connected")
	ErrNegotiationFailed = errors.New("peer negotiation failed")
	ErrBusy              = errors.New("another call is already in progress")
	ErrNoIncomingCall    = errors.New("no incoming call to answer")
)
