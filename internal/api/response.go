package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxBodySize caps request bodies at 1 MB.
const maxBodySize = 1 << 20

// defaultLimit is the page size when the client does not ask for one.
const defaultLimit = 20

// maxLimit is the largest page size a client can request.
const maxLimit = 200

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// readJSON decodes a single JSON object from the request body into dst.
// Returns a client-safe error message, or empty string on success.
func readJSON(r *http.Request, dst any) string {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return "request body must not be empty"
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return "malformed json"
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return "invalid type for field " + strconv.Quote(typeErr.Field)
			}
			return "invalid type in request body"
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return "unknown field " + field
		default:
			return "invalid request body"
		}
	}

	// Reject trailing content after the first object.
	if dec.More() {
		return "request body must contain a single json object"
	}
	return ""
}

// pagination holds parsed limit/offset query parameters.
type pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit and offset query parameters with defaults
// and clamping. Returns a client-safe error message for invalid values.
func parsePagination(r *http.Request) (pagination, string) {
	pg := pagination{Limit: defaultLimit}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return pg, "limit must be a positive integer"
		}
		if n > maxLimit {
			n = maxLimit
		}
		pg.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return pg, "offset must be a non-negative integer"
		}
		pg.Offset = n
	}
	return pg, ""
}

// idParam extracts a positive integer {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
