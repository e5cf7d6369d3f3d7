// Package relay implements the signaling relay: it registers participants
// under their stable call ids and forwards call messages between the two
// sides of a call. It never inspects SDP and never carries media.
package relay

import (
	"sync"

	"github.com/peerdial/peerdial/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	participant *domain.Participant
	conn        *wsConn
	// peer is the counterpart of the call this connection is in, if any.
	// Set when a call request is forwarded, cleared on end/disconnect.
	peer domain.ConnID
}

// Registry is the relay's connection book: connID -> entry plus the
// callID -> connID index used to route call requests.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnID]*connEntry
	byCall map[domain.CallID]domain.ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[domain.ConnID]*connEntry),
		byCall: make(map[domain.CallID]domain.ConnID),
	}
}

// Bind tracks a freshly upgraded connection before it registers.
func (r *Registry) Bind(cid domain.ConnID, conn *wsConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{conn: conn}
	log.Info().Str("module", "relay.registry").Str("conn", string(cid)).Msg("connection bound")
}

// Register claims callID for cid. A callID already claimed by a live
// different connection is refused; re-registering the same connection
// (display name change) is fine.
func (r *Registry) Register(cid domain.ConnID, p *domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[cid]
	if !ok {
		return false
	}
	if owner, claimed := r.byCall[p.CallID]; claimed && owner != cid {
		return false
	}
	if entry.participant != nil && entry.participant.CallID != p.CallID {
		delete(r.byCall, entry.participant.CallID)
	}
	entry.participant = p
	r.byCall[p.CallID] = cid
	log.Info().Str("module", "relay.registry").Str("conn", string(cid)).Str("call_id", string(p.CallID)).Msg("registered")
	return true
}

// Unregister removes the connection and returns its paired counterpart (if
// any) so the controller can notify it.
func (r *Registry) Unregister(cid domain.ConnID) (peer domain.ConnID, participant *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[cid]
	if !ok {
		return "", nil
	}
	if entry.participant != nil {
		delete(r.byCall, entry.participant.CallID)
	}
	delete(r.conns, cid)
	if entry.peer != "" {
		if other, ok := r.conns[entry.peer]; ok && other.peer == cid {
			other.peer = ""
		}
	}
	log.Info().Str("module", "relay.registry").Str("conn", string(cid)).Msg("unregistered")
	return entry.peer, entry.participant
}

// Conn resolves a transport id to its connection.
func (r *Registry) Conn(cid domain.ConnID) (*wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// Participant returns the registered identity of a connection.
func (r *Registry) Participant(cid domain.ConnID) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[cid]
	if !ok || entry.participant == nil {
		return nil, false
	}
	return entry.participant, true
}

// Lookup resolves a stable call id to the connection it is registered on.
func (r *Registry) Lookup(callID domain.CallID) (domain.ConnID, *wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.byCall[callID]
	if !ok {
		return "", nil, false
	}
	entry, ok := r.conns[cid]
	if !ok {
		return "", nil, false
	}
	return cid, entry.conn, true
}

// Pair remembers who is calling whom so hangups and disconnects can be
// routed without the client naming a target. A side that is already in a
// call keeps its pairing; ringing a busy participant must not clobber the
// live call's routing state.
func (r *Registry) Pair(a, b domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ea, oka := r.conns[a]
	eb, okb := r.conns[b]
	if !oka || !okb {
		return false
	}
	if (ea.peer != "" && ea.peer != b) || (eb.peer != "" && eb.peer != a) {
		return false
	}
	ea.peer = b
	eb.peer = a
	return true
}

// PeerOf returns the tracked counterpart of cid.
func (r *Registry) PeerOf(cid domain.ConnID) (domain.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[cid]
	if !ok || entry.peer == "" {
		return "", false
	}
	return entry.peer, true
}

// Unpair clears the pairing between a and b and nothing else. A busy
// reject names a counterpart that was never paired; pairings with third
// parties stay intact.
func (r *Registry) Unpair(a, b domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ea, ok := r.conns[a]; ok && ea.peer == b {
		ea.peer = ""
	}
	if eb, ok := r.conns[b]; ok && eb.peer == a {
		eb.peer = ""
	}
}

// Snapshot lists registered participants for the peers API.
func (r *Registry) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.conns))
	for _, entry := range r.conns {
		if entry.participant != nil {
			out = append(out, *entry.participant)
		}
	}
	return out
}
