package pbxapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAgentLiveStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "agent_status" {
			t.Errorf("function = %q", q.Get("function"))
		}
		if q.Get("user") != "api" || q.Get("pass") != "hunter2" {
			t.Errorf("credentials = %q/%q", q.Get("user"), q.Get("pass"))
		}
		io.WriteString(w, "1001|Alice|READY|SALES|120\r\n1002|Bob|INCALL|SALES|45\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	agents, err := c.AgentLiveStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	want := AgentStatus{Extension: "1001", Name: "Alice", Status: "READY", Campaign: "SALES", SecondsInStatus: 120}
	if agents[0] != want {
		t.Errorf("agent[0] = %+v, want %+v", agents[0], want)
	}
	if agents[1].Status != "INCALL" || agents[1].SecondsInStatus != 45 {
		t.Errorf("agent[1] = %+v", agents[1])
	}
}

func TestAgentLiveStatus_MalformedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "1001|Alice|READY\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	if _, err := c.AgentLiveStatus(context.Background()); err == nil {
		t.Error("expected error for short record")
	}
}

func TestCampaignCallStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("date"); got != "2026-03-01" {
			t.Errorf("date = %q", got)
		}
		io.WriteString(w, "SALES|250|180|12|95\nRENEWALS|80|66|2|140\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	stats, err := c.CampaignCallStats(context.Background(), "2026-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d rows, want 2", len(stats))
	}
	want := CampaignStats{Campaign: "SALES", Dialed: 250, Answered: 180, Dropped: 12, AvgLength: 95}
	if stats[0] != want {
		t.Errorf("stats[0] = %+v, want %+v", stats[0], want)
	}
}

func TestRecordingLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("call_id"); got != "abc-123" {
			t.Errorf("call_id = %q", got)
		}
		io.WriteString(w, "abc-123|https://pbx.example.com/recordings/abc-123.wav\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	url, err := c.RecordingLookup(context.Background(), "abc-123")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://pbx.example.com/recordings/abc-123.wav" {
		t.Errorf("url = %q", url)
	}
}

func TestRecordingLookup_NoRecording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	url, err := c.RecordingLookup(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if url != "" {
		t.Errorf("url = %q, want empty", url)
	}
}

func TestQuery_InBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ERROR: auth failed\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "wrong", testLogger())
	if _, err := c.AgentLiveStatus(context.Background()); err == nil {
		t.Error("expected in-band error to surface")
	}
}

func TestQuery_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api", "hunter2", testLogger())
	if _, err := c.AgentLiveStatus(context.Background()); err == nil {
		t.Error("expected error for status 502")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("", "", "", testLogger())
	if c.Configured() {
		t.Error("empty client reports configured")
	}
	if _, err := c.AgentLiveStatus(context.Background()); err == nil {
		t.Error("expected error from unconfigured client")
	}
}
