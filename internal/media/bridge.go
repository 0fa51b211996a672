package media

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
)

// PortRange bounds the UDP ports a bridge may bind for RTP.
type PortRange struct {
	Min int
	Max int
}

// Bridge carries the audio of one call: it binds a local RTP socket,
// negotiates via SDP, pumps locally captured frames to the peer and
// received frames to the playback sink. Mute is expressed by disabling
// the local track; the receive side is never touched by mute.
type Bridge struct {
	logger *slog.Logger
	source AudioSource
	sink   AudioSink

	conn      *net.UDPConn
	localIP   string
	localPort int

	mu          sync.Mutex
	codec       Codec
	localTrack  *Track
	remoteTrack *Track
	started     bool

	remote atomic.Pointer[net.UDPAddr]
	ssrc   uint32
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBridge binds an even UDP port from the range on localIP and returns a
// bridge ready to produce its local SDP description. Source and sink may be
// nil; silence is sent and received audio discarded in that case.
func NewBridge(localIP string, ports PortRange, source AudioSource, sink AudioSink, logger *slog.Logger) (*Bridge, error) {
	if source == nil {
		source = SilenceSource{}
	}
	if sink == nil {
		sink = DiscardSink{}
	}

	conn, port, err := bindEvenPort(localIP, ports)
	if err != nil {
		return nil, err
	}

	var ssrcBytes [4]byte
	if _, err := rand.Read(ssrcBytes[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("generating ssrc: %w", err)
	}

	return &Bridge{
		logger:    logger.With("subsystem", "media-bridge", "rtp_port", port),
		source:    source,
		sink:      sink,
		conn:      conn,
		localIP:   localIP,
		localPort: port,
		ssrc:      binary.BigEndian.Uint32(ssrcBytes[:]),
		done:      make(chan struct{}),
	}, nil
}

// bindEvenPort binds the first free even UDP port in the range.
// RTP convention: even port for RTP, the next odd one for RTCP.
func bindEvenPort(localIP string, ports PortRange) (*net.UDPConn, int, error) {
	start := ports.Min
	if start%2 != 0 {
		start++
	}
	for port := start; port <= ports.Max; port += 2 {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(localIP), Port: port})
		if err == nil {
			return conn, port, nil
		}
	}
	return nil, 0, fmt.Errorf("no free rtp port in range %d-%d", ports.Min, ports.Max)
}

// LocalPort returns the bound RTP port.
func (b *Bridge) LocalPort() int { return b.localPort }

// LocalDescription returns the SDP body offering this bridge's endpoint.
func (b *Bridge) LocalDescription() ([]byte, error) {
	return BuildDescription(b.localIP, b.localPort, []Codec{CodecPCMU, CodecPCMA})
}

// Connect applies the peer's SDP and starts the media pumps. Safe to call
// once per bridge; subsequent calls only update the remote address.
func (b *Bridge) Connect(remoteSDP []byte) error {
	remote, err := ParseRemoteDescription(remoteSDP)
	if err != nil {
		return fmt.Errorf("negotiating media: %w", err)
	}

	ip, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remote.Address, fmt.Sprintf("%d", remote.Port)))
	if err != nil {
		return fmt.Errorf("resolving remote media address: %w", err)
	}
	b.remote.Store(ip)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true
	b.codec = remote.Codec
	b.localTrack = newTrack(TrackLocal, remote.Codec)
	b.remoteTrack = newTrack(TrackRemote, remote.Codec)

	b.logger.Info("media connected",
		"remote", ip.String(),
		"codec", remote.Codec.Name,
	)

	b.wg.Add(2)
	go b.sendLoop()
	go b.recvLoop()
	return nil
}

// LocalAudioTracks implements TrackHandle.
func (b *Bridge) LocalAudioTracks() []*Track {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.localTrack == nil {
		return nil
	}
	return []*Track{b.localTrack}
}

// RemoteAudioTracks implements TrackHandle.
func (b *Bridge) RemoteAudioTracks() []*Track {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remoteTrack == nil {
		return nil
	}
	return []*Track{b.remoteTrack}
}

// Close tears down the socket and pumps. Tolerates repeated calls.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.done)
	err := b.conn.Close()
	b.wg.Wait()
	b.sink.Close()
	b.source.Close()
	return err
}

// sendLoop reads source frames on the codec's frame cadence, encodes them
// and transmits RTP toward the remote endpoint. A disabled local track
// (mute) suppresses transmission while keeping the clock running so the
// sequence numbers and timestamps stay contiguous on unmute.
func (b *Bridge) sendLoop() {
	defer b.wg.Done()

	b.mu.Lock()
	codec := b.codec
	track := b.localTrack
	b.mu.Unlock()

	pcm := make([]byte, codec.PCMBytesPerFrame())
	seq := uint16(1)
	timestamp := uint32(0)

	ticker := time.NewTicker(codec.FrameDur)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}

		seq++
		timestamp += codec.TimestampIncrement()

		if !track.Enabled() {
			continue
		}

		if err := b.source.ReadFrame(pcm); err != nil {
			b.logger.Debug("audio source exhausted", "error", err)
			return
		}

		payload, err := codec.Encode(pcm)
		if err != nil {
			b.logger.Error("encoding audio frame", "error", err)
			return
		}

		remote := b.remote.Load()
		if remote == nil {
			continue
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    codec.PayloadType,
				SequenceNumber: seq,
				Timestamp:      timestamp,
				SSRC:           b.ssrc,
			},
			Payload: payload,
		}
		buf, err := pkt.Marshal()
		if err != nil {
			b.logger.Error("marshaling rtp packet", "error", err)
			continue
		}
		if _, err := b.conn.WriteToUDP(buf, remote); err != nil {
			if b.closed.Load() {
				return
			}
			b.logger.Debug("writing rtp packet", "error", err)
		}
	}
}

// recvLoop reads RTP from the socket, decodes and hands frames to the
// playback sink. Sink failures are logged, never fatal: losing playback
// must not tear down the call.
func (b *Bridge) recvLoop() {
	defer b.wg.Done()

	buf := make([]byte, 1500)
	var sinkErrLogged bool

	for {
		n, _, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			if b.closed.Load() {
				return
			}
			b.logger.Debug("reading rtp packet", "error", err)
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		codec, ok := CodecByPayloadType(pkt.PayloadType)
		if !ok {
			// Comfort noise, DTMF events and the like.
			continue
		}

		pcm, err := codec.Decode(pkt.Payload)
		if err != nil {
			continue
		}

		if err := b.sink.WriteFrame(pcm); err != nil {
			if !sinkErrLogged {
				b.logger.Warn("audio playback failed, dropping received frames", "error", err)
				sinkErrLogged = true
			}
		}
	}
}
