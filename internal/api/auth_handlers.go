package api

import (
	"net/http"
	"time"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Agent     agentResponse `json:"agent"`
}

type agentResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	SIPNumber   string    `json:"sip_number"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// dummyPasswordHash is a syntactically valid Argon2id hash that no
// password produces. Login attempts for unknown usernames verify against
// it so they cost the same as real checks.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func toAgentResponse(a *models.Agent) agentResponse {
	return agentResponse{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		SIPNumber:   a.SIPNumber,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// handleLogin authenticates an operator and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	agent, err := s.agents.GetByUsername(r.Context(), req.Username)
	if err != nil {
		s.logger.Error("login lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Check against a fixed hash for unknown users so response timing
	// does not reveal whether the username exists.
	hash := dummyPasswordHash
	if agent != nil {
		hash = agent.PasswordHash
	}
	ok, err := database.CheckPassword(req.Password, hash)
	if err != nil || !ok || agent == nil || !agent.Active {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateToken(s.secret, agent.ID, agent.Username, agent.Role)
	if err != nil {
		s.logger.Error("token generation failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("operator logged in", "username", agent.Username, "role", agent.Role)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Agent:     toAgentResponse(agent),
	})
}

// handleMe returns the authenticated operator's account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())
	agent, err := s.agents.GetByID(r.Context(), agentID)
	if err != nil {
		s.logger.Error("loading current agent failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}
