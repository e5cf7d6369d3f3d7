// Package proto defines the signaling wire contract between a participant
// and the relay. Every frame is one JSON object with a "type" discriminator;
// the remaining fields are the payload of that message.
//
// "to"/"from" carry the ephemeral transport connection id of the counterpart,
// "call_id" fields carry the stable participant identifier.
package proto

import (
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypeError        = "error"
	TypeCallRequest  = "call_request"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeIceCandidate = "ice_candidate"
	TypeEndCall      = "end_call"
)

// Envelope is decoded first to pick the payload struct.
type Envelope struct {
	Type string `json:"type"`
}

// Register announces the participant's stable identity after (re)connect.
type Register struct {
	Type        string        `json:"type"`
	CallID      domain.CallID `json:"call_id"`
	DisplayName string        `json:"display_name,omitempty"`
}

// Registered confirms a Register; ConnID is the transport id the relay
// assigned to this connection.
type Registered struct {
	Type   string        `json:"type"`
	CallID domain.CallID `json:"call_id"`
	ConnID domain.ConnID `json:"conn_id"`
}

// Error is a relay-level failure report (unknown target, duplicate id).
type Error struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// CallRequest asks the relay to ring another registered participant.
// Outbound carries the target; the relayed copy carries the caller instead.
type CallRequest struct {
	Type         string        `json:"type"`
	TargetCallID domain.CallID `json:"target_call_id,omitempty"`
	From         domain.ConnID `json:"from,omitempty"`
	FromCallID   domain.CallID `json:"from_call_id,omitempty"`
	FromName     string        `json:"from_name,omitempty"`
}

// CallAccepted tells the caller to start negotiating.
type CallAccepted struct {
	Type string        `json:"type"`
	To   domain.ConnID `json:"to,omitempty"`
	From domain.ConnID `json:"from,omitempty"`
}

// CallRejected tells the caller the callee declined.
type CallRejected struct {
	Type   string        `json:"type"`
	To     domain.ConnID `json:"to,omitempty"`
	From   domain.ConnID `json:"from,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Offer carries the caller's SDP.
type Offer struct {
	Type string        `json:"type"`
	SDP  string        `json:"sdp"`
	To   domain.ConnID `json:"to,omitempty"`
	From domain.ConnID `json:"from,omitempty"`
}

// Answer carries the callee's SDP.
type Answer struct {
	Type string        `json:"type"`
	SDP  string        `json:"sdp"`
	To   domain.ConnID `json:"to,omitempty"`
	From domain.ConnID `json:"from,omitempty"`
}

// IceCandidate carries one gathered candidate in either direction.
type IceCandidate struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	To        domain.ConnID           `json:"to,omitempty"`
	From      domain.ConnID           `json:"from,omitempty"`
}

// EndCall signals hangup. The relay fills From/FromCallID when forwarding,
// including the synthetic EndCall it emits when a peer's socket drops.
type EndCall struct {
	Type       string        `json:"type"`
	From       domain.ConnID `json:"from,omitempty"`
	FromCallID domain.CallID `json:"from_call_id,omitempty"`
}
