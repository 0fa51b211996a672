package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

func TestAgentCRUD(t *testing.T) {
	ts := newTestServer(t)

	// Create.
	w := ts.request(t, http.MethodPost, "/api/v1/agents/", ts.adminToken, agentRequest{
		Username:    "carol",
		Password:    "carol-pass",
		DisplayName: "Carol",
		Role:        models.RoleSupervisor,
		SIPNumber:   "1003",
		SIPPassword: "sip-secret",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created agentResponse
	decodeData(t, w, &created)
	if created.Username != "carol" || created.Role != models.RoleSupervisor {
		t.Errorf("unexpected created agent: %+v", created)
	}

	// The new account can log in.
	w = ts.request(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "carol",
		Password: "carol-pass",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("new account login: expected 200, got %d", w.Code)
	}

	// Update without a password keeps the old one.
	w = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/agents/%d/", created.ID), ts.adminToken, agentRequest{
		Username:    "carol",
		DisplayName: "Carol S",
		Role:        models.RoleAgent,
		SIPNumber:   "1003",
		SIPPassword: "sip-secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = ts.request(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "carol",
		Password: "carol-pass",
	})
	if w.Code != http.StatusOK {
		t.Errorf("login after update: expected 200, got %d", w.Code)
	}

	// Delete.
	w = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/agents/%d/", created.ID), ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/agents/%d/", created.ID), ts.adminToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestCreateAgent_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  agentRequest
		want int
	}{
		{"missing username", agentRequest{Password: "p", Role: models.RoleAgent}, http.StatusBadRequest},
		{"missing password", agentRequest{Username: "dave", Role: models.RoleAgent}, http.StatusBadRequest},
		{"bad role", agentRequest{Username: "dave", Password: "p", Role: "boss"}, http.StatusBadRequest},
		{"bad sip number", agentRequest{Username: "dave", Password: "p", Role: models.RoleAgent, SIPNumber: "abc"}, http.StatusBadRequest},
		{"duplicate username", agentRequest{Username: "alice", Password: "p", Role: models.RoleAgent}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.request(t, http.MethodPost, "/api/v1/agents/", ts.adminToken, tt.req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteAgent_RefusesSelf(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/agents/%d/", ts.adminID), ts.adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 deleting own account, got %d", w.Code)
	}
}

func TestAgentResponses_NeverLeakSecrets(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/agents/", ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, secret := range []string{"password_hash", "sip_password", "argon2id", "sip-secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("response leaks %q: %s", secret, body)
		}
	}
}
