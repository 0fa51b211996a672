package media

import (
	"io"
	"sync"
)

// AudioSource supplies captured local audio as 16-bit LE LPCM frames.
// ReadFrame fills buf completely and returns io.EOF when the source is
// exhausted. Implementations are the microphone capture device in a
// desktop build, or a file/tone generator in headless deployments.
type AudioSource interface {
	ReadFrame(buf []byte) error
	Close() error
}

// AudioSink consumes received remote audio as 16-bit LE LPCM frames.
// The playback device in a desktop build, or a recorder in headless ones.
type AudioSink interface {
	WriteFrame(frame []byte) error
	Close() error
}

// SilenceSource is an AudioSource producing endless silence. Used when no
// capture device is configured so the outbound RTP stream keeps flowing.
type SilenceSource struct{}

func (SilenceSource) ReadFrame(buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (SilenceSource) Close() error { return nil }

// DiscardSink is an AudioSink that drops all frames.
type DiscardSink struct{}

func (DiscardSink) WriteFrame([]byte) error { return nil }
func (DiscardSink) Close() error            { return nil }

// BufferSink collects written frames in memory. Intended for tests and
// short recordings.
type BufferSink struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (b *BufferSink) WriteFrame(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return io.ErrClosedPipe
	}
	b.data = append(b.data, frame...)
	return nil
}

func (b *BufferSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Bytes returns a copy of everything written so far.
func (b *BufferSink) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
