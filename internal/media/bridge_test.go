package media

import (
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := NewBridge("127.0.0.1", PortRange{Min: 40000, Max: 41000}, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBridgeBindsEvenPort(t *testing.T) {
	b := newTestBridge(t)
	if b.LocalPort()%2 != 0 {
		t.Errorf("LocalPort() = %d, want even", b.LocalPort())
	}
	if b.LocalPort() < 40000 || b.LocalPort() > 41000 {
		t.Errorf("LocalPort() = %d, outside range", b.LocalPort())
	}
}

func TestBridgeOfferAnswerNegotiation(t *testing.T) {
	a := newTestBridge(t)
	b := newTestBridge(t)

	offer, err := a.LocalDescription()
	if err != nil {
		t.Fatalf("LocalDescription() error: %v", err)
	}
	if err := b.Connect(offer); err != nil {
		t.Fatalf("b.Connect(offer) error: %v", err)
	}

	answer, err := b.LocalDescription()
	if err != nil {
		t.Fatalf("LocalDescription() error: %v", err)
	}
	if err := a.Connect(answer); err != nil {
		t.Fatalf("a.Connect(answer) error: %v", err)
	}

	if len(a.LocalAudioTracks()) != 1 || len(a.RemoteAudioTracks()) != 1 {
		t.Errorf("track counts = %d local, %d remote; want 1, 1",
			len(a.LocalAudioTracks()), len(a.RemoteAudioTracks()))
	}
}

func TestBridgeTracksAbsentBeforeConnect(t *testing.T) {
	b := newTestBridge(t)
	if tracks := b.LocalAudioTracks(); tracks != nil {
		t.Errorf("LocalAudioTracks() before Connect = %v, want nil", tracks)
	}
	if tracks := b.RemoteAudioTracks(); tracks != nil {
		t.Errorf("RemoteAudioTracks() before Connect = %v, want nil", tracks)
	}
}

func TestBridgeMuteTogglesLocalTrackOnly(t *testing.T) {
	a := newTestBridge(t)
	b := newTestBridge(t)

	offer, _ := a.LocalDescription()
	if err := b.Connect(offer); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	local := b.LocalAudioTracks()[0]
	remote := b.RemoteAudioTracks()[0]

	if !local.Enabled() {
		t.Fatal("local track starts disabled")
	}

	local.SetEnabled(false)
	if local.Enabled() {
		t.Error("local track still enabled after SetEnabled(false)")
	}
	if !remote.Enabled() {
		t.Error("muting the local track disturbed the remote track")
	}

	// Toggle back: double toggle restores the original state.
	local.SetEnabled(true)
	if !local.Enabled() {
		t.Error("local track not re-enabled")
	}
}

func TestBridgeCloseIsIdempotent(t *testing.T) {
	b, err := NewBridge("127.0.0.1", PortRange{Min: 40000, Max: 41000}, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestBridgeAudioLoopback(t *testing.T) {
	sinkA := &BufferSink{}
	a, err := NewBridge("127.0.0.1", PortRange{Min: 41000, Max: 42000}, SilenceSource{}, sinkA, testLogger())
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	defer a.Close()

	b, err := NewBridge("127.0.0.1", PortRange{Min: 41000, Max: 42000}, SilenceSource{}, &BufferSink{}, testLogger())
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	defer b.Close()

	offer, _ := a.LocalDescription()
	if err := b.Connect(offer); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	answer, _ := b.LocalDescription()
	if err := a.Connect(answer); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	// Wait for a few 20ms frames to flow b -> a.
	deadline := time.After(2 * time.Second)
	for {
		if len(sinkA.Bytes()) >= CodecPCMU.PCMBytesPerFrame() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no audio received after 2s (%d bytes)", len(sinkA.Bytes()))
		case <-time.After(20 * time.Millisecond):
		}
	}
}
