// Package media wraps the pion WebRTC primitives behind the acquire /
// negotiate / release operations the call engine needs.
package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Engine builds the webrtc API once and vends capture handles and peer
// links configured with the relay's ICE servers.
type Engine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        zerolog.Logger

	// FallbackToSilence sends paced opus silence when no microphone can be
	// opened, instead of failing the call attempt. Headless deployments and
	// tests run with this on.
	FallbackToSilence bool

	mu   sync.Mutex
	held core.AudioCapture
}

// NewEngine constructs the shared webrtc API: default codecs plus default
// interceptors, the same way every pion consumer in the wild sets it up.
func NewEngine(iceServers []webrtc.ICEServer, logger zerolog.Logger) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)
	return &Engine{api: api, iceServers: iceServers, log: logger}, nil
}

// AcquireAudio opens the platform capture source. Acquiring while a capture
// is already held releases the held one first, so a double acquire never
// leaks the first stream.
func (e *Engine) AcquireAudio(ctx context.Context) (core.AudioCapture, error) {
	e.mu.Lock()
	if e.held != nil {
		e.log.Warn().Str("module", "media").Msg("capture still held, releasing before re-acquire")
		e.held.Close()
		e.held = nil
	}
	e.mu.Unlock()

	reader, err := openMicReader(ctx)
	if err != nil {
		if !e.FallbackToSilence {
			return nil, err
		}
		e.log.Warn().Err(err).Str("module", "media").Msg("mic capture failed, sending silence")
		reader = newSilenceReader()
	}

	handle, err := newCapture(reader, e.log)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	e.mu.Lock()
	e.held = handle
	e.mu.Unlock()
	return handle, nil
}

// NewPeerLink constructs a peer connection carrying the local capture track,
// routing remote audio into sink.
func (e *Engine) NewPeerLink(capture core.AudioCapture, sink core.AudioSink) (core.MediaLink, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if capture != nil && capture.Track() != nil {
		if _, err := pc.AddTrack(capture.Track()); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	} else {
		// Keep a valid audio m-line even without local capture.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add recvonly transceiver: %w", err)
		}
	}

	link := newPeerLink(pc, sink, e.log)
	link.start()
	return link, nil
}
