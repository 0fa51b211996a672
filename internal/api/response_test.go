package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %s)", err, w.Body.String())
	}
	return env
}

func TestWriteJSON_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"destination": "15551234"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("success body must omit the error field, got %s", w.Body.String())
	}

	env := decodeEnvelope(t, w)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object", env.Data)
	}
	if data["destination"] != "15551234" {
		t.Errorf("data = %v", data)
	}
}

func TestWriteError_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusConflict, "call already in progress")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error != "call already in progress" {
		t.Errorf("error = %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestReadJSON(t *testing.T) {
	type dialBody struct {
		Destination string `json:"destination"`
		LeadID      int64  `json:"lead_id"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"destination":"15551234","lead_id":7}`, ""},
		{"empty body", ``, "request body must not be empty"},
		{"malformed", `{"destination":`, "malformed json"},
		{"unknown field", `{"destination":"15551234","cheese":1}`, `unknown field "cheese"`},
		{"wrong type", `{"lead_id":"seven"}`, `invalid type for field "lead_id"`},
		{"trailing object", `{"lead_id":1}{"lead_id":2}`, "request body must contain a single json object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst dialBody
			if got := readJSON(r, &dst); got != tt.wantErr {
				t.Errorf("readJSON() = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestReadJSON_PopulatesTarget(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"destination":"2002"}`))

	var dst struct {
		Destination string `json:"destination"`
	}
	if msg := readJSON(r, &dst); msg != "" {
		t.Fatalf("readJSON() = %q", msg)
	}
	if dst.Destination != "2002" {
		t.Errorf("destination = %q, want 2002", dst.Destination)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    string
	}{
		{"defaults", "", defaultLimit, 0, ""},
		{"explicit", "?limit=50&offset=10", 50, 10, ""},
		{"clamped to max", "?limit=9999", maxLimit, 0, ""},
		{"zero limit", "?limit=0", 0, 0, "limit must be a positive integer"},
		{"negative limit", "?limit=-5", 0, 0, "limit must be a positive integer"},
		{"non-numeric limit", "?limit=many", 0, 0, "limit must be a positive integer"},
		{"negative offset", "?offset=-1", 0, 0, "offset must be a non-negative integer"},
		{"non-numeric offset", "?offset=x", 0, 0, "offset must be a non-negative integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/leads"+tt.query, nil)
			p, msg := parsePagination(r)
			if msg != tt.wantErr {
				t.Fatalf("parsePagination() error = %q, want %q", msg, tt.wantErr)
			}
			if tt.wantErr != "" {
				return
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("pagination = %+v, want limit %d offset %d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestPaginatedResponse_Shape(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  []string{"15551234", "15555678"},
		Total:  42,
		Limit:  defaultLimit,
		Offset: 20,
	})

	env := decodeEnvelope(t, w)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object", env.Data)
	}
	if data["total"] != float64(42) || data["offset"] != float64(20) {
		t.Errorf("data = %v", data)
	}
	items, ok := data["items"].([]any)
	if !ok || len(items) != 2 {
		t.Errorf("items = %v, want 2 entries", data["items"])
	}
}
