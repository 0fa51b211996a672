package media

import "sync/atomic"

// TrackDirection distinguishes locally captured audio from received audio.
type TrackDirection int

const (
	TrackLocal  TrackDirection = iota // captured here, sent to the peer
	TrackRemote                       // received from the peer, played here
)

// Track is one audio stream within a bridge. Local tracks can be disabled,
// which stops their frames from being transmitted (mute) without tearing
// down the stream.
type Track struct {
	direction TrackDirection
	codec     Codec
	enabled   atomic.Bool
}

func newTrack(direction TrackDirection, codec Codec) *Track {
	t := &Track{direction: direction, codec: codec}
	t.enabled.Store(true)
	return t
}

// Direction returns whether this is a local or remote track.
func (t *Track) Direction() TrackDirection { return t.direction }

// Codec returns the negotiated codec for this track.
func (t *Track) Codec() Codec { return t.codec }

// Enabled reports whether the track is transmitting.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled enables or disables transmission on the track.
func (t *Track) SetEnabled(v bool) { t.enabled.Store(v) }

// TrackHandle is the narrow capability surface the call controller uses to
// reach a bridge's audio tracks. It deliberately hides transport internals:
// mute logic must only ever touch what this interface exposes.
type TrackHandle interface {
	// LocalAudioTracks returns the locally captured (outbound) tracks.
	LocalAudioTracks() []*Track

	// RemoteAudioTracks returns the received (inbound) tracks.
	RemoteAudioTracks() []*Track
}
