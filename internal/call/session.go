package call

import (
	"time"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/pion/webrtc/v4"
)

// session is one call attempt. At most one non-terminal session exists per
// manager; the manager's mutex guards every field here.
type session struct {
	remoteCallID domain.CallID
	remoteConnID domain.ConnID
	remoteName   string
	role         domain.Role
	phase        domain.Phase

	// startedAt is stamped on the transition to active, never earlier;
	// duration reflects connected time, not ringing time.
	startedAt time.Time

	muted     bool
	speakerOn bool

	capture core.AudioCapture
	link    core.MediaLink

	// pendingICE holds remote candidates that arrived before the remote
	// description was set. Flushed in arrival order, then discarded.
	pendingICE    []webrtc.ICECandidateInit
	remoteDescSet bool
	// offerSeen gates the callee against a duplicate offer while the
	// answer is still being gathered off the dispatch goroutine.
	offerSeen bool

	stopTicker func()
}

func newSession(role domain.Role, remoteCallID domain.CallID, remoteConnID domain.ConnID, remoteName string) *session {
	return &session{
		remoteCallID: remoteCallID,
		remoteConnID: remoteConnID,
		remoteName:   remoteName,
		role:         role,
		phase:        domain.PhaseIdle,
		speakerOn:    true,
	}
}

// queueOrApply routes a remote candidate per the negotiation state.
// Duplicate candidates are harmless; out-of-order ones are why the queue
// exists at all.
func (s *session) queueOrApply(ci webrtc.ICECandidateInit) error {
	if !s.remoteDescSet {
		s.pendingICE = append(s.pendingICE, ci)
		return nil
	}
	return s.link.AddICECandidate(ci)
}

// markRemoteDescSet flips the queueing gate and flushes pending candidates
// in their original arrival order.
func (s *session) markRemoteDescSet() error {
	s.remoteDescSet = true
	for _, ci := range s.pendingICE {
		if err := s.link.AddICECandidate(ci); err != nil {
			return err
		}
	}
	s.pendingICE = nil
	return nil
}

// release tears down every held resource. Safe to call on any path and more
// than once; the underlying Close/Detach operations are idempotent.
func (s *session) release() {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
	if s.link != nil {
		s.link.Close()
		s.link = nil
	}
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	s.pendingICE = nil
}
