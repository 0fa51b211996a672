package api

import (
	"net/http"
	"time"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

// callbackRequest is the JSON request body for scheduling a callback.
type callbackRequest struct {
	PhoneNumber string    `json:"phone_number"`
	LeadID      *int64    `json:"lead_id"`
	DueAt       time.Time `json:"due_at"`
	Notes       string    `json:"notes"`
}

// callbackResponse is the JSON response for a single callback.
type callbackResponse struct {
	ID          int64  `json:"id"`
	AgentID     int64  `json:"agent_id"`
	LeadID      *int64 `json:"lead_id,omitempty"`
	PhoneNumber string `json:"phone_number"`
	DueAt       string `json:"due_at"`
	Completed   bool   `json:"completed"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
}

func toCallbackResponse(cb *models.Callback) callbackResponse {
	return callbackResponse{
		ID:          cb.ID,
		AgentID:     cb.AgentID,
		LeadID:      cb.LeadID,
		PhoneNumber: cb.PhoneNumber,
		DueAt:       cb.DueAt.Format(time.RFC3339),
		Completed:   cb.Completed,
		Notes:       cb.Notes,
		CreatedAt:   cb.CreatedAt.Format(time.RFC3339),
	}
}

// handleListCallbacks returns the calling operator's due callbacks.
func (s *Server) handleListCallbacks(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())
	callbacks, err := s.callbacks.ListDue(r.Context(), agentID)
	if err != nil {
		s.logger.Error("list callbacks failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]callbackResponse, len(callbacks))
	for i := range callbacks {
		items[i] = toCallbackResponse(&callbacks[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateCallback schedules a follow-up call for the calling
// operator.
func (s *Server) handleCreateCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validatePhoneNumber("phone_number", req.PhoneNumber); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.DueAt.IsZero() {
		writeError(w, http.StatusBadRequest, "due_at is required")
		return
	}
	if errMsg := validateStringLen("notes", req.Notes, maxNotesLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	cb := &models.Callback{
		AgentID:     middleware.AgentIDFromContext(r.Context()),
		LeadID:      req.LeadID,
		PhoneNumber: req.PhoneNumber,
		DueAt:       req.DueAt,
		Notes:       req.Notes,
	}
	if err := s.callbacks.Create(r.Context(), cb); err != nil {
		s.logger.Error("create callback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, toCallbackResponse(cb))
}

// handleCompleteCallback marks a callback as done.
func (s *Server) handleCompleteCallback(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback id")
		return
	}
	if err := s.callbacks.MarkCompleted(r.Context(), id); err != nil {
		s.logger.Error("complete callback failed", "callback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// handleDeleteCallback removes a scheduled callback.
func (s *Server) handleDeleteCallback(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback id")
		return
	}
	if err := s.callbacks.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete callback failed", "callback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
