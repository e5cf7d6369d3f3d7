package proto

import (
	"encoding/json"
	"fmt"
)

// Inbound is the typed union of relay-to-participant messages. The session
// layer switches on the concrete type instead of scattering handlers per
// event name.
type Inbound interface {
	inbound()
}

func (Registered) inbound()   {}
func (Error) inbound()        {}
func (CallRequest) inbound()  {}
func (CallAccepted) inbound() {}
func (CallRejected) inbound() {}
func (Offer) inbound()        {}
func (Answer) inbound()       {}
func (IceCandidate) inbound() {}
func (EndCall) inbound()      {}

// DecodeInbound parses one wire frame into its typed message.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg Inbound
	switch env.Type {
	case TypeRegistered:
		msg = &Registered{}
	case TypeError:
		msg = &Error{}
	case TypeCallRequest:
		msg = &CallRequest{}
	case TypeCallAccepted:
		msg = &CallAccepted{}
	case TypeCallRejected:
		msg = &CallRejected{}
	case TypeOffer:
		msg = &Offer{}
	case TypeAnswer:
		msg = &Answer{}
	case TypeIceCandidate:
		msg = &IceCandidate{}
	case TypeEndCall:
		msg = &EndCall{}
	default:
		return nil, fmt.Errorf("unknown signal type %q", env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// Encode marshals any signaling message for the wire.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return b, nil
}
