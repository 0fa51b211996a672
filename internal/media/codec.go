package media

import (
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// Codec is an immutable audio codec specification for RTP streaming.
type Codec struct {
	Name        string        // codec name as it appears in rtpmap (e.g. "PCMU")
	PayloadType uint8         // RTP payload type (0 for PCMU, 8 for PCMA)
	SampleRate  uint32        // sample rate in Hz
	FrameDur    time.Duration // duration of one frame (20ms for G.711)
}

// Supported codecs. G.711 is the one codec every SIP endpoint speaks.
var (
	// CodecPCMU is G.711 µ-law.
	CodecPCMU = Codec{Name: "PCMU", PayloadType: 0, SampleRate: 8000, FrameDur: 20 * time.Millisecond}

	// CodecPCMA is G.711 A-law.
	CodecPCMA = Codec{Name: "PCMA", PayloadType: 8, SampleRate: 8000, FrameDur: 20 * time.Millisecond}
)

// SamplesPerFrame returns the number of samples in one frame.
// For 8kHz with 20ms frames this is 160.
func (c Codec) SamplesPerFrame() int {
	return int(c.SampleRate) * int(c.FrameDur) / int(time.Second)
}

// PCMBytesPerFrame returns the 16-bit LPCM byte count of one frame.
func (c Codec) PCMBytesPerFrame() int {
	return c.SamplesPerFrame() * 2
}

// TimestampIncrement returns the RTP timestamp increment per frame.
func (c Codec) TimestampIncrement() uint32 {
	return uint32(c.SamplesPerFrame())
}

// Encode converts 16-bit little-endian LPCM to the codec's wire format.
func (c Codec) Encode(pcm []byte) ([]byte, error) {
	switch c.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.EncodeUlaw(pcm), nil
	case CodecPCMA.PayloadType:
		return g711.EncodeAlaw(pcm), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %d", c.PayloadType)
	}
}

// Decode converts the codec's wire format to 16-bit little-endian LPCM.
func (c Codec) Decode(payload []byte) ([]byte, error) {
	switch c.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.DecodeUlaw(payload), nil
	case CodecPCMA.PayloadType:
		return g711.DecodeAlaw(payload), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %d", c.PayloadType)
	}
}

// CodecByPayloadType returns the supported codec for an RTP payload type.
func CodecByPayloadType(pt uint8) (Codec, bool) {
	switch pt {
	case CodecPCMU.PayloadType:
		return CodecPCMU, true
	case CodecPCMA.PayloadType:
		return CodecPCMA, true
	}
	return Codec{}, false
}
