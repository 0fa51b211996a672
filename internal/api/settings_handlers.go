package api

import (
	"net/http"
	"strconv"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// settingsResponse is the shape returned by GET /settings.
type settingsResponse struct {
	SIP sipSettingsResponse `json:"sip"`
}

type sipSettingsResponse struct {
	ServerDomain string `json:"server_domain"`
	Protocol     string `json:"protocol"`
	ServerPort   string `json:"server_port"`
}

// settingsRequest is the shape accepted by PUT /settings. Only provided
// sections are updated.
type settingsRequest struct {
	SIP *sipSettingsRequest `json:"sip"`
}

type sipSettingsRequest struct {
	ServerDomain string `json:"server_domain"`
	Protocol     string `json:"protocol"`
	ServerPort   string `json:"server_port"`
}

// handleGetSettings returns system settings grouped by section.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	get := func(key string) string {
		val, _ := s.sysConfig.Get(ctx, key)
		return val
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		SIP: sipSettingsResponse{
			ServerDomain: get(models.ConfigSIPServerDomain),
			Protocol:     get(models.ConfigSIPProtocol),
			ServerPort:   get(models.ConfigSIPServerPort),
		},
	})
}

// handleUpdateSettings saves system settings. Changed SIP settings take
// effect for an operator the next time their engine is created.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	if req.SIP != nil {
		sip := req.SIP

		if sip.ServerPort != "" {
			port, err := strconv.Atoi(sip.ServerPort)
			if err != nil || port < 1 || port > 65535 {
				writeError(w, http.StatusBadRequest, "sip server_port must be a valid port (1-65535)")
				return
			}
		}
		switch sip.Protocol {
		case "", "ws", "wss":
		default:
			writeError(w, http.StatusBadRequest, "sip protocol must be ws or wss")
			return
		}

		pairs := map[string]string{
			models.ConfigSIPServerDomain: sip.ServerDomain,
			models.ConfigSIPProtocol:     sip.Protocol,
			models.ConfigSIPServerPort:   sip.ServerPort,
		}
		for key, value := range pairs {
			if err := s.sysConfig.Set(ctx, key, value); err != nil {
				s.logger.Error("failed to save sip settings", "key", key, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
		}
	}

	s.handleGetSettings(w, r)
}
