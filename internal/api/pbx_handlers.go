package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// pbxConfigured writes a 503 when no PBX management API is configured.
func (s *Server) pbxConfigured(w http.ResponseWriter) bool {
	if s.pbx == nil || !s.pbx.Configured() {
		writeError(w, http.StatusServiceUnavailable, "pbx management api is not configured")
		return false
	}
	return true
}

// handlePBXAgentStatus returns the live agent status board from the PBX.
func (s *Server) handlePBXAgentStatus(w http.ResponseWriter, r *http.Request) {
	if !s.pbxConfigured(w) {
		return
	}
	statuses, err := s.pbx.AgentLiveStatus(r.Context())
	if err != nil {
		s.logger.Error("pbx agent status failed", "error", err)
		writeError(w, http.StatusBadGateway, "pbx request failed")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handlePBXCampaignStats returns per-campaign call statistics for one
// day. The date query parameter defaults to today.
func (s *Server) handlePBXCampaignStats(w http.ResponseWriter, r *http.Request) {
	if !s.pbxConfigured(w) {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	stats, err := s.pbx.CampaignCallStats(r.Context(), date)
	if err != nil {
		s.logger.Error("pbx campaign stats failed", "date", date, "error", err)
		writeError(w, http.StatusBadGateway, "pbx request failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePBXRecording resolves the recording location for a PBX call id.
func (s *Server) handlePBXRecording(w http.ResponseWriter, r *http.Request) {
	if !s.pbxConfigured(w) {
		return
	}
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "call id is required")
		return
	}

	location, err := s.pbx.RecordingLookup(r.Context(), callID)
	if err != nil {
		s.logger.Error("pbx recording lookup failed", "call_id", callID, "error", err)
		writeError(w, http.StatusBadGateway, "pbx request failed")
		return
	}
	if location == "" {
		writeError(w, http.StatusNotFound, "no recording for call")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"call_id":  callID,
		"location": location,
	})
}
