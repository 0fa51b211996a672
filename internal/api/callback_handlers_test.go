package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCallbackLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Schedule a callback due in the past so it shows up as due.
	w := ts.request(t, http.MethodPost, "/api/v1/callbacks/", ts.agentToken, callbackRequest{
		PhoneNumber: "5551234",
		DueAt:       time.Now().UTC().Add(-time.Hour),
		Notes:       "asked for a quote",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created callbackResponse
	decodeData(t, w, &created)
	if created.ID == 0 {
		t.Fatal("expected a callback id")
	}

	// It appears in the owner's due list.
	w = ts.request(t, http.MethodGet, "/api/v1/callbacks/", ts.agentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var due []callbackResponse
	decodeData(t, w, &due)
	if len(due) != 1 {
		t.Fatalf("expected 1 due callback, got %d", len(due))
	}

	// Other operators do not see it.
	w = ts.request(t, http.MethodGet, "/api/v1/callbacks/", ts.adminToken, nil)
	decodeData(t, w, &due)
	if len(due) != 0 {
		t.Errorf("expected no callbacks for other operator, got %d", len(due))
	}

	// Completing removes it from the due list.
	w = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/callbacks/%d/complete", created.ID), ts.agentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", w.Code)
	}
	w = ts.request(t, http.MethodGet, "/api/v1/callbacks/", ts.agentToken, nil)
	decodeData(t, w, &due)
	if len(due) != 0 {
		t.Errorf("expected no due callbacks after completion, got %d", len(due))
	}
}

func TestCreateCallback_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  callbackRequest
	}{
		{"missing phone", callbackRequest{DueAt: time.Now()}},
		{"missing due_at", callbackRequest{PhoneNumber: "5551234"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.request(t, http.MethodPost, "/api/v1/callbacks/", ts.agentToken, tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}
