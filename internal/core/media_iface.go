package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// AudioCapture is exclusive ownership of the acquired microphone (or
// substitute) source for one session.
type AudioCapture interface {
	// Track is the local track to attach to a peer link.
	Track() webrtc.TrackLocal
	// SetEnabled(false) mutes capture without detaching the track.
	SetEnabled(enabled bool)
	// Close stops capture. Idempotent.
	Close()
}

// AudioSink is where the remote track plays out. Muting the sink is the
// speaker toggle; it never touches local capture.
type AudioSink interface {
	SetMuted(muted bool)
	// Detach drops the current source and stops the drain pump. Idempotent.
	Detach()
}

// MediaLink wraps one peer connection for one session.
type MediaLink interface {
	// CreateOffer waits for ICE gathering and returns the full local SDP.
	CreateOffer() (string, error)
	// ApplyAnswer sets the counterpart's answer as remote description.
	ApplyAnswer(sdp string) error
	// ApplyOfferAndCreateAnswer is the callee path: set remote offer,
	// produce the local answer.
	ApplyOfferAndCreateAnswer(sdp string) (string, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRemoteTrack fires once the counterpart's audio is flowing into the
	// sink; the session uses it to go active.
	OnRemoteTrack(func())
	// OnDown fires when the connection fails or closes unexpectedly.
	OnDown(func())
	// Close releases the peer connection. Idempotent.
	Close()
}

// MediaEngine vends capture handles and peer links.
type MediaEngine interface {
	AcquireAudio(ctx context.Context) (AudioCapture, error)
	NewPeerLink(capture AudioCapture, sink AudioSink) (MediaLink, error)
}
