//go:build linux

package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"

	"github.com/peerdial/peerdial/internal/core"
)

// openMicReader captures the default microphone via pion/mediadevices
// (malgo/ALSA underneath) encoded as opus.
func openMicReader(_ context.Context) (sampleReader, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	selector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&opusParams))

	if len(mediadevices.EnumerateDevices()) == 0 {
		return nil, core.ErrNoDevice
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrMediaAccessDenied, err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, core.ErrNoDevice
	}
	track := tracks[0]

	reader, err := track.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		_ = track.Close()
		return nil, fmt.Errorf("opus reader: %w", err)
	}
	return &micReader{track: track, reader: reader}, nil
}

type micReader struct {
	track  mediadevices.Track
	reader mediadevices.EncodedReadCloser
}

func (m *micReader) ReadSample() ([]byte, time.Duration, error) {
	buf, release, err := m.reader.Read()
	if err != nil {
		return nil, 0, err
	}
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	release()

	duration := frameInterval
	if buf.Samples > 0 {
		duration = time.Duration(buf.Samples) * time.Second / 48000
	}
	return data, duration, nil
}

func (m *micReader) Close() error {
	err := m.reader.Close()
	if terr := m.track.Close(); err == nil {
		err = terr
	}
	return err
}
