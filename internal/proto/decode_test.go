package proto

import (
	"testing"

	"github.com/peerdial/peerdial/internal/domain"
)

func TestDecodeInboundCallRequest(t *testing.T) {
	frame := []byte(`{"type":"call_request","from":"conn-1","from_call_id":"alice","from_name":"Alice"}`)
	msg, err := DecodeInbound(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	req, ok := msg.(*CallRequest)
	if !ok {
		t.Fatalf("expected *CallRequest, got %T", msg)
	}
	if req.From != "conn-1" || req.FromCallID != "alice" || req.FromName != "Alice" {
		t.Fatalf("unexpected payload: %+v", req)
	}
}

func TestDecodeInboundOffer(t *testing.T) {
	frame := []byte(`{"type":"offer","sdp":"v=0...","from":"conn-2"}`)
	msg, err := DecodeInbound(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	offer, ok := msg.(*Offer)
	if !ok {
		t.Fatalf("expected *Offer, got %T", msg)
	}
	if offer.SDP != "v=0..." || offer.From != "conn-2" {
		t.Fatalf("unexpected payload: %+v", offer)
	}
}

func TestDecodeInboundIceCandidate(t *testing.T) {
	frame := []byte(`{"type":"ice_candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"},"from":"conn-3"}`)
	msg, err := DecodeInbound(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ice, ok := msg.(*IceCandidate)
	if !ok {
		t.Fatalf("expected *IceCandidate, got %T", msg)
	}
	if ice.Candidate.Candidate == "" || ice.From != "conn-3" {
		t.Fatalf("unexpected payload: %+v", ice)
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{"type":"warp_drive"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestDecodeInboundBadJSON(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	out := &EndCall{Type: TypeEndCall, From: "conn-9", FromCallID: domain.CallID("bob")}
	b, err := Encode(out)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	msg, err := DecodeInbound(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	in, ok := msg.(*EndCall)
	if !ok {
		t.Fatalf("expected *EndCall, got %T", msg)
	}
	if in.From != out.From || in.FromCallID != out.FromCallID {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}
