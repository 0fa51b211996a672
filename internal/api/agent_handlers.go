package api

import (
	"net/http"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

// agentRequest is the JSON request body for creating/updating an
// operator account. Passwords are write-only; empty password on update
// keeps the current one.
type agentRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	SIPNumber   string `json:"sip_number"`
	SIPPassword string `json:"sip_password"`
	Active      *bool  `json:"active"`
}

// validateAgentRequest validates create/update agent requests.
func validateAgentRequest(req agentRequest, create bool) string {
	if errMsg := validateUsername("username", req.Username); errMsg != "" {
		return errMsg
	}
	if create && req.Password == "" {
		return "password is required"
	}
	if errMsg := validateStringLen("password", req.Password, maxPasswordLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("display_name", req.DisplayName, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateRole("role", req.Role); errMsg != "" {
		return errMsg
	}
	if errMsg := validateExtensionNumber("sip_number", req.SIPNumber); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("sip_password", req.SIPPassword, maxPasswordLen); errMsg != "" {
		return errMsg
	}
	return ""
}

// handleListAgents returns all operator accounts.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		s.logger.Error("list agents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = toAgentResponse(&agents[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateAgent creates an operator account.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateAgentRequest(req, true); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.agents.GetByUsername(r.Context(), req.Username)
	if err != nil {
		s.logger.Error("agent lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "username already exists")
		return
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	agent := &models.Agent{
		Username:     req.Username,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		SIPNumber:    req.SIPNumber,
		SIPPassword:  req.SIPPassword,
		Active:       active,
	}
	if err := s.agents.Create(r.Context(), agent); err != nil {
		s.logger.Error("create agent failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.Info("agent created", "username", agent.Username, "role", agent.Role)
	writeJSON(w, http.StatusCreated, toAgentResponse(agent))
}

// handleGetAgent returns a single operator account.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	agent, err := s.agents.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get agent failed", "agent_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

// handleUpdateAgent updates an operator account. A changed SIP account
// or deactivation tears down any live engine so the next connect uses
// fresh settings.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateAgentRequest(req, false); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	agent, err := s.agents.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get agent failed", "agent_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	if req.Username != agent.Username {
		existing, err := s.agents.GetByUsername(r.Context(), req.Username)
		if err != nil {
			s.logger.Error("agent lookup failed", "username", req.Username, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
	}

	sipChanged := agent.SIPNumber != req.SIPNumber || agent.SIPPassword != req.SIPPassword

	agent.Username = req.Username
	agent.DisplayName = req.DisplayName
	agent.Role = req.Role
	agent.SIPNumber = req.SIPNumber
	agent.SIPPassword = req.SIPPassword
	if req.Active != nil {
		agent.Active = *req.Active
	}
	if req.Password != "" {
		hash, err := database.HashPassword(req.Password)
		if err != nil {
			s.logger.Error("password hashing failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		agent.PasswordHash = hash
	}

	if err := s.agents.Update(r.Context(), agent); err != nil {
		s.logger.Error("update agent failed", "agent_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if sipChanged || !agent.Active {
		s.engines.Release(agent.ID)
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

// handleDeleteAgent deletes an operator account and tears down its
// engine.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if id == middleware.AgentIDFromContext(r.Context()) {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := s.agents.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete agent failed", "agent_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.engines.Release(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
