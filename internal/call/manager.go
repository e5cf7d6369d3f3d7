// Package call owns the lifecycle of a single voice call: ringing,
// negotiation, active media and teardown. It talks to the relay through
// core.SignalTransport and to WebRTC through core.MediaEngine; both are
// injected, so the state machine itself has no transport or pion coupling.
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Manager drives the call session state machine. One instance per client
// process; it is the sole mutator of session phase. Transport and media
// callbacks only propose transitions through its methods.
type Manager struct {
	transport core.SignalTransport
	engine    core.MediaEngine
	sink      core.AudioSink
	log       zerolog.Logger

	// now and tick are swappable for tests.
	now  func() time.Time
	tick time.Duration

	mu sync.Mutex
	// sess is the single live session; nil when idle.
	sess *session
	// starting guards the async media-acquisition window so overlapping
	// StartCall/AcceptCall attempts fail fast instead of racing.
	starting bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	done     chan struct{}
	stopOnce sync.Once
}

// New wires a manager to its transport and media engine and starts
// consuming transport events immediately.
func New(transport core.SignalTransport, engine core.MediaEngine, sink core.AudioSink, logger zerolog.Logger) *Manager {
	m := &Manager{
		transport: transport,
		engine:    engine,
		sink:      sink,
		log:       logger,
		now:       time.Now,
		tick:      time.Second,
		subs:      make(map[int]chan Event),
		done:      make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// Subscribe returns a channel of state-change events and a cancel func.
// Slow subscribers lose events rather than stalling the state machine.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()
	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) emit(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) emitPhase(p domain.Phase) {
	m.emit(Event{Kind: EventPhase, Phase: p})
}

// StartCall acquires the microphone, then asks the relay to ring target.
// Media denial keeps the manager idle; nothing is half-initialized.
func (m *Manager) StartCall(ctx context.Context, target domain.CallID) error {
	if target == "" {
		return fmt.Errorf("start call: %w", domain.ErrCallIDEmpty)
	}

	m.mu.Lock()
	if m.sess != nil || m.starting {
		m.mu.Unlock()
		return core.ErrBusy
	}
	if m.transport.ConnID() == "" {
		m.mu.Unlock()
		return core.ErrSignalingDown
	}
	m.starting = true
	m.mu.Unlock()

	capture, err := m.engine.AcquireAudio(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	if m.sess != nil {
		// An incoming call slipped in while the mic dialog was open.
		capture.Close()
		return core.ErrBusy
	}

	s := newSession(domain.RoleCaller, target, "", "")
	s.capture = capture
	s.phase = domain.PhaseRingingOut
	m.sess = s

	if err := m.transport.Send(&proto.CallRequest{Type: proto.TypeCallRequest, TargetCallID: target}); err != nil {
		s.release()
		m.sess = nil
		return fmt.Errorf("start call: %w", err)
	}

	m.log.Info().Str("module", "call").Str("target", string(target)).Msg("outgoing call ringing")
	m.emitPhase(s.phase)
	return nil
}

// AcceptCall answers the pending incoming call: acquire media, create the
// peer link and tell the caller to send its offer. On media denial the
// session stays in ringing-in so the user can retry or reject.
func (m *Manager) AcceptCall(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	if s == nil || s.phase != domain.PhaseRingingIn {
		m.mu.Unlock()
		return core.ErrNoIncomingCall
	}
	if m.starting {
		m.mu.Unlock()
		return core.ErrBusy
	}
	m.starting = true
	m.mu.Unlock()

	capture, err := m.engine.AcquireAudio(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if err != nil {
		return fmt.Errorf("accept call: %w", err)
	}
	if m.sess != s || s.phase != domain.PhaseRingingIn {
		// The caller hung up while the mic dialog was open.
		capture.Close()
		return core.ErrNoIncomingCall
	}
	s.capture = capture

	link, err := m.engine.NewPeerLink(capture, m.sink)
	if err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "call setup failed")
		return fmt.Errorf("accept call: %w", err)
	}
	s.link = link
	m.wireLink(s)
	s.phase = domain.PhaseNegotiating

	if err := m.transport.Send(&proto.CallAccepted{Type: proto.TypeCallAccepted, To: s.remoteConnID}); err != nil {
		m.teardownLocked(domain.PhaseFailed, false, "signaling connection lost")
		return fmt.Errorf("accept call: %w", err)
	}

	m.log.Info().Str("module", "call").Str("from", string(s.remoteCallID)).Msg("incoming call accepted, waiting for offer")
	m.emitPhase(s.phase)
	return nil
}

// RejectCall declines the pending incoming call. No media was ever acquired
// for a purely rejected call, so teardown is trivial.
func (m *Manager) RejectCall() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil || s.phase != domain.PhaseRingingIn {
		return core.ErrNoIncomingCall
	}
	if err := m.transport.Send(&proto.CallRejected{Type: proto.TypeCallRejected, To: s.remoteConnID, Reason: "declined"}); err != nil {
		m.log.Warn().Err(err).Str("module", "call").Msg("reject notify failed")
	}
	m.teardownLocked(domain.PhaseRejected, false, "")
	return nil
}

// EndCall hangs up whatever is in flight. Idempotent: calling it twice, or
// after the remote already ended, is a no-op.
func (m *Manager) EndCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(domain.PhaseEnded, true, "")
}

// ToggleMute flips local capture enablement and returns the new muted
// state. It never touches the playback sink.
func (m *Manager) ToggleMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil || s.capture == nil {
		return false
	}
	s.muted = !s.muted
	s.capture.SetEnabled(!s.muted)
	return s.muted
}

// ToggleSpeaker flips remote playback muting and returns whether the
// speaker is now on. It never touches local capture.
func (m *Manager) ToggleSpeaker() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil {
		return true
	}
	s.speakerOn = !s.speakerOn
	m.sink.SetMuted(!s.speakerOn)
	return s.speakerOn
}

// Snapshot returns the current observable state for UI polling.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil {
		return Snapshot{Phase: domain.PhaseIdle, Duration: ZeroDuration, IsSpeakerOn: true}
	}
	snap := Snapshot{
		Phase:       s.phase,
		IsInCall:    s.phase == domain.PhaseActive,
		IsCalling:   s.phase == domain.PhaseRingingOut,
		Duration:    ZeroDuration,
		IsMuted:     s.muted,
		IsSpeakerOn: s.speakerOn,
	}
	if s.phase == domain.PhaseRingingIn {
		snap.Incoming = &IncomingInfo{From: s.remoteConnID, FromCallID: s.remoteCallID, FromName: s.remoteName}
	}
	if s.phase == domain.PhaseActive {
		snap.Duration = FormatDuration(m.now().Sub(s.startedAt))
	}
	return snap
}

// Close hangs up any live session and stops the dispatch loop.
func (m *Manager) Close() {
	m.EndCall()
	m.stopOnce.Do(func() { close(m.done) })
	m.subMu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.subMu.Unlock()
}

func (m *Manager) dispatchLoop() {
	events := m.transport.Events()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Msg != nil {
				m.handleMsg(ev.Msg)
				continue
			}
			m.handleTransportState(ev.State)
		}
	}
}

// handleMsg is the single dispatch point for inbound signaling. Messages
// that reference a counterpart other than the tracked one, or arrive in a
// phase that does not expect them, are dropped with a warning instead of
// corrupting state.
func (m *Manager) handleMsg(msg proto.Inbound) {
	switch msg := msg.(type) {
	case *proto.Registered:
		m.log.Info().Str("module", "call").Str("call_id", string(msg.CallID)).Str("conn_id", string(msg.ConnID)).Msg("registered with relay")
	case *proto.Error:
		m.handleRelayError(msg)
	case *proto.CallRequest:
		m.handleCallRequest(msg)
	case *proto.CallAccepted:
		m.handleCallAccepted(msg)
	case *proto.CallRejected:
		m.handleCallRejected(msg)
	case *proto.Offer:
		m.handleOffer(msg)
	case *proto.Answer:
		m.handleAnswer(msg)
	case *proto.IceCandidate:
		m.handleIceCandidate(msg)
	case *proto.EndCall:
		m.handleEndCall(msg)
	}
}

func (m *Manager) handleRelayError(msg *proto.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Warn().Str("module", "call").Str("reason", msg.Reason).Msg("relay error")
	// The only relay error that concerns a live session is a failed ring
	// (target unknown or offline).
	if s := m.sess; s != nil && s.phase == domain.PhaseRingingOut {
		m.teardownLocked(domain.PhaseFailed, false, msg.Reason)
	}
}

func (m *Manager) handleCallRequest(msg *proto.CallRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil || m.starting {
		// Busy policy: a second inbound call is auto-rejected.
		m.log.Info().Str("module", "call").Str("from", string(msg.FromCallID)).Msg("busy, rejecting incoming call")
		if err := m.transport.Send(&proto.CallRejected{Type: proto.TypeCallRejected, To: msg.From, Reason: "busy"}); err != nil {
			m.log.Warn().Err(err).Str("module", "call").Msg("busy reject failed")
		}
		return
	}
	s := newSession(domain.RoleCallee, msg.FromCallID, msg.From, msg.FromName)
	s.phase = domain.PhaseRingingIn
	m.sess = s
	m.log.Info().Str("module", "call").Str("from", string(msg.FromCallID)).Msg("incoming call")
	m.emit(Event{Kind: EventIncoming, Incoming: &IncomingInfo{From: msg.From, FromCallID: msg.FromCallID, FromName: msg.FromName}})
	m.emitPhase(s.phase)
}

func (m *Manager) handleCallAccepted(msg *proto.CallAccepted) {
	m.mu.Lock()
	s := m.sess
	if s == nil || s.role != domain.RoleCaller || s.phase != domain.PhaseRingingOut {
		m.mu.Unlock()
		m.log.Warn().Str("module", "call").Msg("unexpected call_accepted, dropping")
		return
	}
	s.remoteConnID = msg.From

	link, err := m.engine.NewPeerLink(s.capture, m.sink)
	if err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "call setup failed")
		m.mu.Unlock()
		return
	}
	s.link = link
	m.wireLink(s)
	s.phase = domain.PhaseNegotiating
	m.emitPhase(s.phase)
	m.mu.Unlock()

	// ICE gathering can take seconds; it must not stall the dispatch loop
	// or hold the lock.
	go m.sendOffer(s, link)
}

func (m *Manager) sendOffer(s *session, link core.MediaLink) {
	offer, err := link.CreateOffer()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || s.phase.Terminal() {
		// The call ended while the offer was being gathered.
		return
	}
	if err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "negotiation failed")
		return
	}
	if err := m.transport.Send(&proto.Offer{Type: proto.TypeOffer, SDP: offer, To: s.remoteConnID}); err != nil {
		m.teardownLocked(domain.PhaseFailed, false, "signaling connection lost")
		return
	}
	m.log.Info().Str("module", "call").Str("to", string(s.remoteConnID)).Msg("offer sent")
}

func (m *Manager) handleCallRejected(msg *proto.CallRejected) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil || s.role != domain.RoleCaller || s.phase != domain.PhaseRingingOut {
		return
	}
	if msg.From != "" && s.remoteConnID != "" && msg.From != s.remoteConnID {
		return
	}
	reason := "call was rejected"
	if msg.Reason == "busy" {
		reason = "the other side is busy"
	}
	m.teardownLocked(domain.PhaseRejected, false, reason)
}

func (m *Manager) handleOffer(msg *proto.Offer) {
	m.mu.Lock()
	s := m.sess
	if s == nil || s.role != domain.RoleCallee || s.phase != domain.PhaseNegotiating ||
		msg.From != s.remoteConnID || s.offerSeen {
		m.mu.Unlock()
		m.log.Warn().Str("module", "call").Msg("unexpected offer, dropping")
		return
	}
	s.offerSeen = true
	link := s.link
	m.mu.Unlock()

	go m.sendAnswer(s, link, msg.SDP)
}

func (m *Manager) sendAnswer(s *session, link core.MediaLink, offerSDP string) {
	answer, err := link.ApplyOfferAndCreateAnswer(offerSDP)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || s.phase.Terminal() {
		return
	}
	if err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "negotiation failed")
		return
	}
	if err := m.transport.Send(&proto.Answer{Type: proto.TypeAnswer, SDP: answer, To: s.remoteConnID}); err != nil {
		m.teardownLocked(domain.PhaseFailed, false, "signaling connection lost")
		return
	}
	if err := s.markRemoteDescSet(); err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "negotiation failed")
		return
	}
	m.log.Info().Str("module", "call").Str("to", string(s.remoteConnID)).Msg("answer sent")
}

func (m *Manager) handleAnswer(msg *proto.Answer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil || s.role != domain.RoleCaller || s.phase != domain.PhaseNegotiating || msg.From != s.remoteConnID {
		m.log.Warn().Str("module", "call").Msg("unexpected answer, dropping")
		return
	}
	if err := s.link.ApplyAnswer(msg.SDP); err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "negotiation failed")
		return
	}
	if err := s.markRemoteDescSet(); err != nil {
		m.teardownLocked(domain.PhaseFailed, true, "negotiation failed")
		return
	}
}

func (m *Manager) handleIceCandidate(msg *proto.IceCandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil || s.phase.Terminal() {
		return
	}
	if s.remoteConnID != "" && msg.From != s.remoteConnID {
		m.log.Warn().Str("module", "call").Str("from", string(msg.From)).Msg("candidate from unknown peer, dropping")
		return
	}
	if err := s.queueOrApply(msg.Candidate); err != nil {
		// A bad candidate is not fatal; the rest may still connect.
		m.log.Warn().Err(err).Str("module", "call").Msg("apply candidate")
	}
}

func (m *Manager) handleEndCall(msg *proto.EndCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return
	}
	if msg.From != "" && m.sess.remoteConnID != "" && msg.From != m.sess.remoteConnID {
		return
	}
	m.teardownLocked(domain.PhaseEnded, false, "remote ended the call")
}

func (m *Manager) handleTransportState(state core.TransportState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state != core.TransportDown {
		return
	}
	if m.sess != nil {
		m.teardownLocked(domain.PhaseFailed, false, "signaling connection lost")
	}
}

// wireLink hooks peer-link callbacks into the state machine. Callbacks fire
// on pion goroutines; they only touch the manager through locking methods.
func (m *Manager) wireLink(s *session) {
	to := s.remoteConnID
	s.link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := m.transport.Send(&proto.IceCandidate{Type: proto.TypeIceCandidate, Candidate: ci, To: to}); err != nil {
			m.log.Warn().Err(err).Str("module", "call").Msg("send candidate")
		}
	})
	s.link.OnRemoteTrack(func() { m.markActive(s) })
	s.link.OnDown(func() { m.failFromMedia(s) })
}

// markActive stamps startedAt and starts the duration ticker. Fires on the
// first remote track, i.e. both descriptions are set and media flows.
func (m *Manager) markActive(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || s.phase != domain.PhaseNegotiating {
		return
	}
	s.phase = domain.PhaseActive
	s.startedAt = m.now()
	m.sink.SetMuted(!s.speakerOn)

	stop := make(chan struct{})
	var once sync.Once
	s.stopTicker = func() { once.Do(func() { close(stop) }) }
	go m.runTicker(s.startedAt, stop)

	m.log.Info().Str("module", "call").Str("peer", string(s.remoteCallID)).Msg("call active")
	m.emitPhase(s.phase)
}

func (m *Manager) runTicker(startedAt time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.emit(Event{Kind: EventDuration, Duration: FormatDuration(m.now().Sub(startedAt))})
		}
	}
}

func (m *Manager) failFromMedia(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || s.phase.Terminal() {
		return
	}
	m.teardownLocked(domain.PhaseFailed, false, "connection lost")
}

// teardownLocked is the single resource-release path. Whoever observes the
// end first wins; later calls find no session and return. Caller holds mu.
func (m *Manager) teardownLocked(terminal domain.Phase, notifyRemote bool, notice string) {
	s := m.sess
	if s == nil || s.phase.Terminal() {
		return
	}
	wasActive := s.phase == domain.PhaseActive

	if notifyRemote {
		if err := m.transport.Send(&proto.EndCall{Type: proto.TypeEndCall}); err != nil {
			m.log.Warn().Err(err).Str("module", "call").Msg("end notify failed")
		}
	}

	s.release()
	m.sink.Detach()
	m.sink.SetMuted(false)
	s.phase = terminal
	m.sess = nil

	m.log.Info().Str("module", "call").Str("phase", terminal.String()).Str("peer", string(s.remoteCallID)).Msg("call torn down")
	if wasActive {
		m.emit(Event{Kind: EventDuration, Duration: ZeroDuration})
	}
	m.emitPhase(terminal)
	if notice != "" {
		m.emit(Event{Kind: EventNotice, Notice: notice})
	}
}
