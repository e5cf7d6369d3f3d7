package media

import (
	"fmt"
	"sync"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// peerLink wraps one PeerConnection for one call session.
type peerLink struct {
	pc   *webrtc.PeerConnection
	sink core.AudioSink
	log  zerolog.Logger

	mu            sync.Mutex
	onICE         func(webrtc.ICECandidateInit)
	onRemoteTrack func()
	onDown        func()

	closeOnce sync.Once
}

func newPeerLink(pc *webrtc.PeerConnection, sink core.AudioSink, logger zerolog.Logger) *peerLink {
	return &peerLink{pc: pc, sink: sink, log: logger}
}

// start registers the pion callbacks. Split from construction so the owner
// can be fully built before events start firing.
func (l *peerLink) start() {
	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.log.Info().Str("module", "media").Str("ice_state", s.String()).Msg("ICE state")
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.log.Info().Str("module", "media").Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if fn := l.callback(&l.onDown); fn != nil {
				fn()
			}
		}
	})

	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := l.iceCallback(); fn != nil {
			fn(cand.ToJSON())
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.log.Info().
			Str("module", "media").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if attacher, ok := l.sink.(trackAttacher); ok {
			attacher.attach(track)
		}
		if fn := l.callback(&l.onRemoteTrack); fn != nil {
			fn()
		}
	})
}

func (l *peerLink) callback(slot *func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *slot
}

func (l *peerLink) iceCallback() func(webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onICE
}

func (l *peerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onICE = fn
	l.mu.Unlock()
}

func (l *peerLink) OnRemoteTrack(fn func()) {
	l.mu.Lock()
	l.onRemoteTrack = fn
	l.mu.Unlock()
}

func (l *peerLink) OnDown(fn func()) {
	l.mu.Lock()
	l.onDown = fn
	l.mu.Unlock()
}

// CreateOffer produces the local SDP after ICE gathering completes, so the
// offer carries every local candidate up front.
func (l *peerLink) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create offer: %s", core.ErrNegotiationFailed, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: set local description: %s", core.ErrNegotiationFailed, err)
	}
	<-gatherComplete
	return l.pc.LocalDescription().SDP, nil
}

func (l *peerLink) ApplyAnswer(sdp string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: apply answer: %s", core.ErrNegotiationFailed, err)
	}
	return nil
}

func (l *peerLink) ApplyOfferAndCreateAnswer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("%w: apply offer: %s", core.ErrNegotiationFailed, err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create answer: %s", core.ErrNegotiationFailed, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: set local description: %s", core.ErrNegotiationFailed, err)
	}
	<-gatherComplete
	return l.pc.LocalDescription().SDP, nil
}

func (l *peerLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *peerLink) Close() {
	l.closeOnce.Do(func() {
		if err := l.pc.Close(); err != nil {
			l.log.Error().Err(err).Str("module", "media").Msg("close peer connection")
			return
		}
		l.log.Info().Str("module", "media").Msg("peer connection closed")
	})
}
