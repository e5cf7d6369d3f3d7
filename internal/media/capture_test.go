package media

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordedReader yields canned frames, then blocks until closed.
type recordedReader struct {
	mu     sync.Mutex
	frames [][]byte
	done   chan struct{}
	once   sync.Once
}

func newRecordedReader(frames ...[]byte) *recordedReader {
	return &recordedReader{frames: frames, done: make(chan struct{})}
}

func (r *recordedReader) ReadSample() ([]byte, time.Duration, error) {
	r.mu.Lock()
	if len(r.frames) > 0 {
		f := r.frames[0]
		r.frames = r.frames[1:]
		r.mu.Unlock()
		return f, frameInterval, nil
	}
	r.mu.Unlock()
	<-r.done
	return nil, 0, io.EOF
}

func (r *recordedReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}

func TestCaptureCloseIdempotent(t *testing.T) {
	reader := newRecordedReader()
	c, err := newCapture(reader, zerolog.Nop())
	if err != nil {
		t.Fatalf("newCapture failed: %v", err)
	}
	if c.Track() == nil {
		t.Fatal("capture has no track")
	}
	c.Close()
	c.Close()
}

func TestSilenceReaderPacesFrames(t *testing.T) {
	r := newSilenceReader()
	defer r.Close()

	data, duration, err := r.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample failed: %v", err)
	}
	if len(data) == 0 || duration != frameInterval {
		t.Fatalf("unexpected frame: %d bytes, %v", len(data), duration)
	}

	r.Close()
	if _, _, err := r.ReadSample(); err != io.EOF {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}

func TestSinkDetachIdempotent(t *testing.T) {
	s := NewSink(nil, zerolog.Nop())
	s.SetMuted(true)
	s.SetMuted(false)
	s.Detach()
	s.Detach()
}
