package call

import (
	"context"
	"sync"
	"time"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
	"github.com/pion/webrtc/v4"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []any
	sendErr error
	connID  domain.ConnID
	events  chan core.TransportEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connID: "self-conn",
		events: make(chan core.TransportEvent, 64),
	}
}

func (f *fakeTransport) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) ConnID() domain.ConnID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connID
}

func (f *fakeTransport) Events() <-chan core.TransportEvent { return f.events }
func (f *fakeTransport) Close()                             {}

// push injects an inbound message as if the relay sent it.
func (f *fakeTransport) push(msg proto.Inbound) {
	f.events <- core.TransportEvent{Msg: msg}
}

func (f *fakeTransport) pushState(state core.TransportState) {
	f.events <- core.TransportEvent{State: state}
}

func (f *fakeTransport) sentMessages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) countSent(match func(any) bool) int {
	n := 0
	for _, m := range f.sentMessages() {
		if match(m) {
			n++
		}
	}
	return n
}

type fakeCapture struct {
	mu         sync.Mutex
	enabled    bool
	closeCount int
}

func (f *fakeCapture) Track() webrtc.TrackLocal { return nil }

func (f *fakeCapture) SetEnabled(enabled bool) {
	f.mu.Lock()
	f.enabled = enabled
	f.mu.Unlock()
}

func (f *fakeCapture) Close() {
	f.mu.Lock()
	f.closeCount++
	f.mu.Unlock()
}

func (f *fakeCapture) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

type fakeLink struct {
	mu         sync.Mutex
	offerSDP   string
	answerSDP  string
	applied    []webrtc.ICECandidateInit
	remoteSDPs []string
	closeCount int

	// offerGate, when set, blocks CreateOffer until closed, standing in
	// for a slow ICE gathering phase.
	offerGate chan struct{}

	onICE         func(webrtc.ICECandidateInit)
	onRemoteTrack func()
	onDown        func()
}

func (f *fakeLink) CreateOffer() (string, error) {
	if f.offerGate != nil {
		<-f.offerGate
	}
	f.offerSDP = "offer-sdp"
	return f.offerSDP, nil
}

func (f *fakeLink) ApplyAnswer(sdp string) error {
	f.mu.Lock()
	f.remoteSDPs = append(f.remoteSDPs, sdp)
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) ApplyOfferAndCreateAnswer(sdp string) (string, error) {
	f.mu.Lock()
	f.remoteSDPs = append(f.remoteSDPs, sdp)
	f.mu.Unlock()
	f.answerSDP = "answer-sdp"
	return f.answerSDP, nil
}

func (f *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	f.applied = append(f.applied, ci)
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeLink) OnRemoteTrack(fn func())                        { f.onRemoteTrack = fn }
func (f *fakeLink) OnDown(fn func())                               { f.onDown = fn }

func (f *fakeLink) Close() {
	f.mu.Lock()
	f.closeCount++
	f.mu.Unlock()
}

func (f *fakeLink) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.applied))
	copy(out, f.applied)
	return out
}

func (f *fakeLink) remoteDescs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.remoteSDPs))
	copy(out, f.remoteSDPs)
	return out
}

func (f *fakeLink) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

type fakeEngine struct {
	mu         sync.Mutex
	acquireErr error
	linkErr    error
	offerGate  chan struct{}
	captures   []*fakeCapture
	links      []*fakeLink
}

func (f *fakeEngine) AcquireAudio(ctx context.Context) (core.AudioCapture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	c := &fakeCapture{enabled: true}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *fakeEngine) NewPeerLink(capture core.AudioCapture, sink core.AudioSink) (core.MediaLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	l := &fakeLink{offerGate: f.offerGate}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeEngine) lastLink() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.links) == 0 {
		return nil
	}
	return f.links[len(f.links)-1]
}

func (f *fakeEngine) lastCapture() *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

func (f *fakeEngine) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

type fakeSink struct {
	mu          sync.Mutex
	muted       bool
	detachCount int
}

func (f *fakeSink) SetMuted(muted bool) {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
}

func (f *fakeSink) Detach() {
	f.mu.Lock()
	f.detachCount++
	f.mu.Unlock()
}

func (f *fakeSink) detaches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detachCount
}

const testWait = 3 * time.Second
