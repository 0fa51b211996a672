package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dialdesk/dialdesk/internal/pbxapi"
)

// withPBXBackend points the server's PBX client at a fake management API.
func withPBXBackend(t *testing.T, ts *testServer, handler http.HandlerFunc) {
	t.Helper()
	backend := httptest.NewServer(handler)
	t.Cleanup(backend.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts.srv.pbx = pbxapi.NewClient(backend.URL, "api", "secret", logger)
}

func TestPBXAgentStatus(t *testing.T) {
	ts := newTestServer(t)
	withPBXBackend(t, ts, func(w http.ResponseWriter, r *http.Request) {
		if fn := r.URL.Query().Get("function"); fn != "agent_status" {
			t.Errorf("expected function=agent_status, got %q", fn)
		}
		fmt.Fprint(w, "1001|Alice|INCALL|sales|42\n1002|Bob|READY|sales|7\n")
	})

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/agents", ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var statuses []pbxapi.AgentStatus
	decodeData(t, w, &statuses)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(statuses))
	}
	if statuses[0].Extension != "1001" || statuses[0].Status != "INCALL" {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
}

func TestPBXCampaignStats_BadDate(t *testing.T) {
	ts := newTestServer(t)
	withPBXBackend(t, ts, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "")
	})

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/campaigns?date=yesterday", ts.adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPBXRecording(t *testing.T) {
	ts := newTestServer(t)
	withPBXBackend(t, ts, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "C123|/recordings/2026/C123.wav\n")
	})

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/recordings/C123", ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var data map[string]string
	decodeData(t, w, &data)
	if data["location"] != "/recordings/2026/C123.wav" {
		t.Errorf("unexpected location %q", data["location"])
	}
}

func TestPBXRecording_NotFound(t *testing.T) {
	ts := newTestServer(t)
	withPBXBackend(t, ts, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "")
	})

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/recordings/C999", ts.adminToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestPBX_Unconfigured(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/agents", ts.adminToken, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestPBX_BackendError(t *testing.T) {
	ts := newTestServer(t)
	withPBXBackend(t, ts, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ERROR: invalid credentials\n")
	})

	w := ts.request(t, http.MethodGet, "/api/v1/pbx/agents", ts.adminToken, nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
