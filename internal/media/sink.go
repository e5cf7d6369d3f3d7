package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// trackAttacher is how a peer link hands the remote track to a sink.
type trackAttacher interface {
	attach(track *webrtc.TrackRemote)
}

// Sink drains the remote audio track and forwards its RTP packets to an
// optional consumer (the playback device). Muting the sink only gates
// forwarding; the drain keeps running so the jitter buffer never backs up.
type Sink struct {
	log     zerolog.Logger
	consume func(pkt *rtp.Packet)
	muted   atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
}

// NewSink builds a playback sink. consume may be nil for a discard sink
// (useful headless and under test).
func NewSink(consume func(pkt *rtp.Packet), logger zerolog.Logger) *Sink {
	return &Sink{log: logger, consume: consume}
}

func (s *Sink) attach(track *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	s.log.Info().Str("module", "media").Str("track_id", track.ID()).Msg("sink attached")
	go s.pump(track, stop)
}

func (s *Sink) pump(track *webrtc.TrackRemote, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			// Track gone: either the session ended or the peer connection
			// dropped. Both are handled upstream.
			s.log.Info().Err(err).Str("module", "media").Msg("sink pump stopped")
			return
		}
		if s.muted.Load() || s.consume == nil {
			continue
		}
		s.consume(pkt)
	}
}

// SetMuted is the speaker toggle. It never touches local capture.
func (s *Sink) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Detach drops the current source and stops the drain pump. Idempotent.
func (s *Sink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
