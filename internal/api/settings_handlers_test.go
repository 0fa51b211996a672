package api

import (
	"net/http"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPut, "/api/v1/settings", ts.adminToken, settingsRequest{
		SIP: &sipSettingsRequest{
			ServerDomain: "pbx.example.com",
			Protocol:     "wss",
			ServerPort:   "8089",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.request(t, http.MethodGet, "/api/v1/settings", ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var resp settingsResponse
	decodeData(t, w, &resp)
	if resp.SIP.ServerDomain != "pbx.example.com" {
		t.Errorf("expected domain pbx.example.com, got %q", resp.SIP.ServerDomain)
	}
	if resp.SIP.Protocol != "wss" {
		t.Errorf("expected protocol wss, got %q", resp.SIP.Protocol)
	}
	if resp.SIP.ServerPort != "8089" {
		t.Errorf("expected port 8089, got %q", resp.SIP.ServerPort)
	}
}

func TestUpdateSettings_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  settingsRequest
	}{
		{"bad port", settingsRequest{SIP: &sipSettingsRequest{ServerPort: "99999"}}},
		{"non-numeric port", settingsRequest{SIP: &sipSettingsRequest{ServerPort: "default"}}},
		{"bad protocol", settingsRequest{SIP: &sipSettingsRequest{Protocol: "udp"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.request(t, http.MethodPut, "/api/v1/settings", ts.adminToken, tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSettings_AdminOnly(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/settings", ts.agentToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("agent reading settings: expected 403, got %d", w.Code)
	}
}
