package media

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// opusSilence is a standard opus DTX frame. It keeps the outbound track
// paced while muted or when no capture hardware exists.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameInterval = 20 * time.Millisecond

// sampleReader yields encoded opus frames from some capture source.
type sampleReader interface {
	// ReadSample blocks until the next frame; io.EOF after Close.
	ReadSample() (data []byte, duration time.Duration, err error)
	Close() error
}

// capture owns the local audio track for one session and the pump feeding
// it. Disabling substitutes silence frames instead of detaching the track,
// so mute never renegotiates anything.
type capture struct {
	track   *webrtc.TrackLocalStaticSample
	reader  sampleReader
	log     zerolog.Logger
	enabled atomic.Bool

	closeOnce sync.Once
}

func newCapture(reader sampleReader, logger zerolog.Logger) (*capture, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "peerdial",
	)
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	c := &capture{track: track, reader: reader, log: logger}
	c.enabled.Store(true)
	go c.pump()
	return c, nil
}

func (c *capture) pump() {
	for {
		data, duration, err := c.reader.ReadSample()
		if err != nil {
			if err != io.EOF {
				c.log.Warn().Err(err).Str("module", "media").Msg("capture pump stopped")
			}
			return
		}
		if !c.enabled.Load() {
			data = opusSilence
		}
		if err := c.track.WriteSample(pmedia.Sample{Data: data, Duration: duration}); err != nil {
			c.log.Warn().Err(err).Str("module", "media").Msg("write sample")
		}
	}
}

func (c *capture) Track() webrtc.TrackLocal { return c.track }

func (c *capture) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

func (c *capture) Close() {
	c.closeOnce.Do(func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn().Err(err).Str("module", "media").Msg("close capture reader")
		}
		c.log.Info().Str("module", "media").Msg("capture released")
	})
}

// silenceReader paces opus DTX frames at the usual 20ms cadence. It is the
// capture source on platforms without microphone drivers and under test.
type silenceReader struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func newSilenceReader() *silenceReader {
	return &silenceReader{
		ticker: time.NewTicker(frameInterval),
		done:   make(chan struct{}),
	}
}

func (r *silenceReader) ReadSample() ([]byte, time.Duration, error) {
	select {
	case <-r.done:
		return nil, 0, io.EOF
	case <-r.ticker.C:
		return opusSilence, frameInterval, nil
	}
}

func (r *silenceReader) Close() error {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
	return nil
}
