package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

// callLogResponse is the JSON response for a single call log.
type callLogResponse struct {
	ID          int64  `json:"id"`
	AgentID     int64  `json:"agent_id"`
	LeadID      *int64 `json:"lead_id,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	Duration    *int   `json:"duration,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toCallLogResponse(l *models.CallLog) callLogResponse {
	return callLogResponse{
		ID:          l.ID,
		AgentID:     l.AgentID,
		LeadID:      l.LeadID,
		PhoneNumber: l.PhoneNumber,
		Direction:   l.Direction,
		Status:      l.Status,
		Notes:       l.Notes,
		Duration:    l.Duration,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
	}
}

// handleListCallLogs returns call logs with filtering and pagination.
// Plain agents only see their own logs; supervisors and admins may
// filter across agents.
func (s *Server) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter := database.CallLogListFilter{
		Limit:     pg.Limit,
		Offset:    pg.Offset,
		Status:    r.URL.Query().Get("status"),
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
	}
	if filter.Status != "" && !models.ValidDisposition(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid disposition status")
		return
	}

	role := middleware.RoleFromContext(r.Context())
	if role == models.RoleAgent {
		filter.AgentID = middleware.AgentIDFromContext(r.Context())
	} else if v := r.URL.Query().Get("agent_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "agent_id must be a positive integer")
			return
		}
		filter.AgentID = id
	}

	logs, total, err := s.callLogs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list call logs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]callLogResponse, len(logs))
	for i := range logs {
		items[i] = toCallLogResponse(&logs[i])
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetCallLog returns a single call log. Plain agents only see
// their own.
func (s *Server) handleGetCallLog(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call log id")
		return
	}
	log, err := s.callLogs.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get call log failed", "call_log_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if log == nil {
		writeError(w, http.StatusNotFound, "call log not found")
		return
	}
	if middleware.RoleFromContext(r.Context()) == models.RoleAgent &&
		log.AgentID != middleware.AgentIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "call log not found")
		return
	}
	writeJSON(w, http.StatusOK, toCallLogResponse(log))
}

// handleCallLogStats returns disposition counts across all call logs.
func (s *Server) handleCallLogStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.callLogs.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("call log stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": counts,
	})
}
