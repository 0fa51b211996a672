package media

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// RemoteEndpoint is the peer's media address and codec negotiated via SDP.
type RemoteEndpoint struct {
	Address string
	Port    int
	Codec   Codec
}

// BuildDescription marshals an SDP session description offering (or
// answering with) the given codecs on addr:port. The same shape serves as
// both offer and answer for a symmetric G.711 session.
func BuildDescription(addr string, port int, codecs []Codec) ([]byte, error) {
	formats := make([]string, 0, len(codecs))
	attributes := make([]sdp.Attribute, 0, len(codecs)+1)
	for _, c := range codecs {
		pt := strconv.Itoa(int(c.PayloadType))
		formats = append(formats, pt)
		attributes = append(attributes, sdp.Attribute{
			Key:   "rtpmap",
			Value: fmt.Sprintf("%s %s/%d", pt, c.Name, c.SampleRate),
		})
	}
	attributes = append(attributes, sdp.Attribute{Key: "sendrecv"})

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "dialdesk",
			SessionID:      uint64(time.Now().UnixNano()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "DialDesk Call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				Attributes: attributes,
			},
		},
	}

	body, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling sdp: %w", err)
	}
	return body, nil
}

// ParseRemoteDescription extracts the peer's audio endpoint and selects the
// first mutually supported codec from an SDP body.
func ParseRemoteDescription(body []byte) (*RemoteEndpoint, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("unmarshaling sdp: %w", err)
	}

	var audio *sdp.MediaDescription
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "audio" {
			audio = m
			break
		}
	}
	if audio == nil {
		return nil, fmt.Errorf("no audio media description in sdp")
	}
	if audio.MediaName.Port.Value == 0 {
		return nil, fmt.Errorf("audio stream is disabled (port 0)")
	}

	// Media-level connection overrides the session-level one.
	conn := desc.ConnectionInformation
	if audio.ConnectionInformation != nil {
		conn = audio.ConnectionInformation
	}
	if conn == nil || conn.Address == nil || conn.Address.Address == "" {
		return nil, fmt.Errorf("no connection address in sdp")
	}

	// Pick the first offered format we can speak.
	for _, format := range audio.MediaName.Formats {
		pt, err := strconv.Atoi(format)
		if err != nil || pt < 0 || pt > 127 {
			continue
		}
		if codec, ok := CodecByPayloadType(uint8(pt)); ok {
			return &RemoteEndpoint{
				Address: conn.Address.Address,
				Port:    audio.MediaName.Port.Value,
				Codec:   codec,
			}, nil
		}
	}

	return nil, fmt.Errorf("no mutually supported codec in sdp (formats: %v)", audio.MediaName.Formats)
}
