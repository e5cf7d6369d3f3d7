package relay

import (
	"testing"

	"github.com/peerdial/peerdial/internal/domain"
)

func mustParticipant(t *testing.T, callID, name string) *domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(domain.CallID(callID), name)
	if err != nil {
		t.Fatalf("participant %q invalid: %v", callID, err)
	}
	return p
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-1", nil)

	if !r.Register("conn-1", mustParticipant(t, "alice", "Alice")) {
		t.Fatal("register failed")
	}
	cid, _, ok := r.Lookup("alice")
	if !ok || cid != "conn-1" {
		t.Fatalf("lookup returned %q, %v", cid, ok)
	}
	if _, _, ok := r.Lookup("bob"); ok {
		t.Fatal("lookup of unknown call id must fail")
	}
}

func TestRegistryDuplicateCallID(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-1", nil)
	r.Bind("conn-2", nil)

	if !r.Register("conn-1", mustParticipant(t, "alice", "Alice")) {
		t.Fatal("first register failed")
	}
	if r.Register("conn-2", mustParticipant(t, "alice", "Imposter")) {
		t.Fatal("second connection must not claim a live call id")
	}
	// The same connection may re-register, e.g. to change its display name.
	if !r.Register("conn-1", mustParticipant(t, "alice", "Alice B")) {
		t.Fatal("re-register on the same connection failed")
	}
}

func TestRegistryReleaseOnUnregister(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-1", nil)
	r.Register("conn-1", mustParticipant(t, "alice", "Alice"))

	peer, p := r.Unregister("conn-1")
	if peer != "" {
		t.Fatalf("unexpected peer %q", peer)
	}
	if p == nil || p.CallID != "alice" {
		t.Fatalf("unexpected participant %+v", p)
	}

	// The id is free again.
	r.Bind("conn-2", nil)
	if !r.Register("conn-2", mustParticipant(t, "alice", "Alice")) {
		t.Fatal("freed call id must be claimable")
	}
}

func TestRegistryPairing(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-1", nil)
	r.Bind("conn-2", nil)
	if !r.Pair("conn-1", "conn-2") {
		t.Fatal("pairing two free connections failed")
	}

	if peer, ok := r.PeerOf("conn-1"); !ok || peer != "conn-2" {
		t.Fatalf("PeerOf(conn-1) = %q, %v", peer, ok)
	}
	if peer, ok := r.PeerOf("conn-2"); !ok || peer != "conn-1" {
		t.Fatalf("PeerOf(conn-2) = %q, %v", peer, ok)
	}

	r.Unpair("conn-1", "conn-2")
	if _, ok := r.PeerOf("conn-1"); ok {
		t.Fatal("conn-1 still paired after unpair")
	}
	if _, ok := r.PeerOf("conn-2"); ok {
		t.Fatal("unpair must clear both sides")
	}
}

func TestRegistryPairRefusesBusyTarget(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-a", nil)
	r.Bind("conn-b", nil)
	r.Bind("conn-c", nil)
	if !r.Pair("conn-a", "conn-b") {
		t.Fatal("initial pairing failed")
	}

	// A third caller ringing a busy participant must not steal the pairing.
	if r.Pair("conn-c", "conn-b") {
		t.Fatal("pairing with a busy target must be refused")
	}
	if peer, ok := r.PeerOf("conn-b"); !ok || peer != "conn-a" {
		t.Fatalf("live pairing clobbered: PeerOf(conn-b) = %q, %v", peer, ok)
	}
	if _, ok := r.PeerOf("conn-c"); ok {
		t.Fatal("refused caller must stay unpaired")
	}

	// The busy reject names the third caller; the live call edge survives.
	r.Unpair("conn-b", "conn-c")
	if peer, ok := r.PeerOf("conn-b"); !ok || peer != "conn-a" {
		t.Fatalf("busy reject cleared the live pairing: PeerOf(conn-b) = %q, %v", peer, ok)
	}

	// Re-pairing is idempotent for the existing edge.
	if !r.Pair("conn-a", "conn-b") {
		t.Fatal("re-pairing the same edge must succeed")
	}
}

func TestRegistryUnregisterReportsPeer(t *testing.T) {
	r := NewRegistry()
	r.Bind("conn-1", nil)
	r.Bind("conn-2", nil)
	r.Register("conn-1", mustParticipant(t, "alice", ""))
	r.Register("conn-2", mustParticipant(t, "bob", ""))
	r.Pair("conn-1", "conn-2")

	peer, p := r.Unregister("conn-1")
	if peer != "conn-2" {
		t.Fatalf("expected peer conn-2, got %q", peer)
	}
	if p == nil || p.CallID != "alice" {
		t.Fatalf("unexpected participant %+v", p)
	}
	if _, ok := r.PeerOf("conn-2"); ok {
		t.Fatal("survivor must be unpaired")
	}
}
