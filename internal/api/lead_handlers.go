package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

// leadRequest is the JSON request body for creating/updating a lead.
type leadRequest struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Status      string `json:"status"`
	AssignedTo  *int64 `json:"assigned_to"`
	Notes       string `json:"notes"`
}

// leadResponse is the JSON response for a single lead.
type leadResponse struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Status      string `json:"status"`
	AssignedTo  *int64 `json:"assigned_to"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toLeadResponse(l *models.Lead) leadResponse {
	return leadResponse{
		ID:          l.ID,
		PhoneNumber: l.PhoneNumber,
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		Company:     l.Company,
		Status:      l.Status,
		AssignedTo:  l.AssignedTo,
		Notes:       l.Notes,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   l.UpdatedAt.Format(time.RFC3339),
	}
}

// validateLeadRequest validates create/update lead requests.
func validateLeadRequest(req leadRequest) string {
	if errMsg := validatePhoneNumber("phone_number", req.PhoneNumber); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("first_name", req.FirstName, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("last_name", req.LastName, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("company", req.Company, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateLeadStatus("status", req.Status); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("notes", req.Notes, maxNotesLen); errMsg != "" {
		return errMsg
	}
	return ""
}

// handleListLeads returns leads with filtering and pagination.
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter := database.LeadListFilter{
		Limit:  pg.Limit,
		Offset: pg.Offset,
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	if errMsg := validateLeadStatus("status", filter.Status); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if v := r.URL.Query().Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "assigned_to must be a positive integer")
			return
		}
		filter.AssignedTo = id
	}

	leads, total, err := s.leads.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list leads failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]leadResponse, len(leads))
	for i := range leads {
		items[i] = toLeadResponse(&leads[i])
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleCreateLead creates a new lead.
func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateLeadRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	status := req.Status
	if status == "" {
		status = "new"
	}
	lead := &models.Lead{
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Company:     req.Company,
		Status:      status,
		AssignedTo:  req.AssignedTo,
		Notes:       req.Notes,
	}
	if err := s.leads.Create(r.Context(), lead); err != nil {
		s.logger.Error("create lead failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, toLeadResponse(lead))
}

// handleGetLead returns a single lead.
func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	lead, err := s.leads.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get lead failed", "lead_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

// handleUpdateLead updates a lead.
func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	var req leadRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateLeadRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	lead, err := s.leads.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get lead failed", "lead_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	lead.PhoneNumber = req.PhoneNumber
	lead.FirstName = req.FirstName
	lead.LastName = req.LastName
	lead.Company = req.Company
	if req.Status != "" {
		lead.Status = req.Status
	}
	lead.AssignedTo = req.AssignedTo
	lead.Notes = req.Notes

	if err := s.leads.Update(r.Context(), lead); err != nil {
		s.logger.Error("update lead failed", "lead_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

// handleDeleteLead deletes a lead.
func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	if err := s.leads.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete lead failed", "lead_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
