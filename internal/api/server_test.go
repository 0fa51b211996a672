package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
	"github.com/dialdesk/dialdesk/internal/pbxapi"
	"github.com/dialdesk/dialdesk/internal/softphone"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// testServer bundles the server under test with its seeded accounts.
type testServer struct {
	srv        *Server
	db         *database.DB
	agents     database.AgentRepository
	leads      database.LeadRepository
	callLogs   database.CallLogRepository
	sysConfig  database.SystemConfigRepository
	agentID    int64
	adminID    int64
	agentToken string
	adminToken string
}

// newTestServer builds a server backed by a throwaway SQLite database
// seeded with one agent and one admin account.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	agents := database.NewAgentRepository(db)
	leads := database.NewLeadRepository(db)
	callLogs := database.NewCallLogRepository(db)
	callbacks := database.NewCallbackRepository(db)
	sysConfig, err := database.NewSystemConfigRepository(ctx, db)
	if err != nil {
		t.Fatalf("creating system config repo: %v", err)
	}

	resolver := softphone.NewResolver(sysConfig, logger)
	manager := softphone.NewManager(resolver, agents, callLogs, softphone.EngineOptions{}, logger)
	t.Cleanup(manager.Close)

	ts := &testServer{
		db:        db,
		agents:    agents,
		leads:     leads,
		callLogs:  callLogs,
		sysConfig: sysConfig,
	}
	ts.agentID = ts.seedAgent(t, "alice", "agent-pass", models.RoleAgent, "1001")
	ts.adminID = ts.seedAgent(t, "boss", "admin-pass", models.RoleAdmin, "")

	ts.agentToken = ts.tokenFor(t, ts.agentID, "alice", models.RoleAgent)
	ts.adminToken = ts.tokenFor(t, ts.adminID, "boss", models.RoleAdmin)

	ts.srv = NewServer(ServerOptions{
		Secret:    testSecret,
		Agents:    agents,
		Leads:     leads,
		CallLogs:  callLogs,
		Callbacks: callbacks,
		SysConfig: sysConfig,
		Engines:   manager,
		PBX:       pbxapi.NewClient("", "", "", logger),
		Logger:    logger,
	})
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) seedAgent(t *testing.T, username, password, role, sipNumber string) int64 {
	t.Helper()
	hash, err := database.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	agent := &models.Agent{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  username,
		Role:         role,
		SIPNumber:    sipNumber,
		SIPPassword:  "sip-secret",
		Active:       true,
	}
	if err := ts.agents.Create(context.Background(), agent); err != nil {
		t.Fatalf("seeding agent %s: %v", username, err)
	}
	return agent.ID
}

func (ts *testServer) tokenFor(t *testing.T, id int64, username, role string) string {
	t.Helper()
	token, _, err := middleware.GenerateToken(testSecret, id, username, role)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

// request performs an HTTP request against the router and returns the
// recorder. A non-empty token is sent as a bearer token.
func (ts *testServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.srv.ServeHTTP(w, req)
	return w
}

// decodeData unmarshals the data field of a response envelope into dst.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %s)", err, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding data: %v (body %s)", err, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var data map[string]string
	decodeData(t, w, &data)
	if data["status"] != "ok" {
		t.Errorf("expected status ok, got %v", data)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/leads/"},
		{http.MethodGet, "/api/v1/call/state"},
		{http.MethodGet, "/api/v1/call-logs/"},
	}
	for _, p := range paths {
		w := ts.request(t, p.method, p.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/agents/", ts.agentToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("agent listing accounts: expected 403, got %d", w.Code)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/agents/", ts.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin listing accounts: expected 200, got %d", w.Code)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/pbx/agents", ts.agentToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("agent hitting pbx routes: expected 403, got %d", w.Code)
	}
}
