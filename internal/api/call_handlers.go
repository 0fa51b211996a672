package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dialdesk/dialdesk/internal/api/middleware"
	"github.com/dialdesk/dialdesk/internal/database/models"
	"github.com/dialdesk/dialdesk/internal/softphone"
)

// engineFor resolves the calling operator's softphone engine, writing the
// error response itself when resolution fails.
func (s *Server) engineFor(w http.ResponseWriter, r *http.Request) *softphone.Engine {
	agentID := middleware.AgentIDFromContext(r.Context())
	eng, err := s.engines.Engine(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, softphone.ErrNotConfigured) {
			writeError(w, http.StatusConflict, "sip account is not configured")
			return nil
		}
		s.logger.Error("engine resolution failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	return eng
}

// writeCallError maps softphone errors onto HTTP status codes.
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, softphone.ErrNotRegistered):
		writeError(w, http.StatusConflict, "softphone is not registered")
	case errors.Is(err, softphone.ErrCallInProgress):
		writeError(w, http.StatusConflict, "a call is already in progress")
	case errors.Is(err, softphone.ErrNoActiveCall):
		writeError(w, http.StatusConflict, "no active call")
	case errors.Is(err, softphone.ErrNotEstablished):
		writeError(w, http.StatusConflict, "call is not established")
	case errors.Is(err, softphone.ErrNoPendingCall):
		writeError(w, http.StatusConflict, "no incoming call to answer")
	case errors.Is(err, softphone.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "invalid destination number")
	case errors.Is(err, softphone.ErrNoCallContext):
		writeError(w, http.StatusConflict, "no call context to dispose")
	case errors.Is(err, softphone.ErrInvalidDisposition):
		writeError(w, http.StatusBadRequest, "invalid disposition status")
	case errors.Is(err, softphone.ErrEngineClosed):
		writeError(w, http.StatusConflict, "softphone is shut down")
	default:
		s.logger.Error("call operation failed", "error", err)
		writeError(w, http.StatusBadGateway, "call operation failed")
	}
}

// handleConnect starts the operator's softphone registration.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	if err := eng.Start(); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// handleDisconnect unregisters the operator's softphone. An in-progress
// call is hung up first.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())
	eng, ok := s.engines.Lookup(agentID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
		return
	}
	eng.Stop()
	writeJSON(w, http.StatusOK, eng.State())
}

type dialRequest struct {
	Destination string `json:"destination"`
	LeadID      *int64 `json:"lead_id,omitempty"`
}

// handleDial places an outbound call.
func (s *Server) handleDial(w http.ResponseWriter, r *http.Request) {
	var req dialRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	if err := eng.Dial(r.Context(), req.Destination, req.LeadID); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// handleHangup ends the current call.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	if err := eng.Hangup(); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// handleAnswer accepts a pending inbound call.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	if err := eng.Answer(); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// handleMute toggles the microphone on the current call.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	muted, err := eng.ToggleMute()
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

type transferRequest struct {
	Destination string `json:"destination"`
}

// handleTransfer performs a blind transfer of the established call.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	if err := eng.Transfer(r.Context(), req.Destination); err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// handleCallState returns the operator's softphone snapshot. Unlike the
// action routes this never creates an engine: an operator who has not
// connected yet just sees the stopped state.
func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())
	eng, ok := s.engines.Lookup(agentID)
	if !ok {
		writeJSON(w, http.StatusOK, softphone.EngineState{
			AgentID:    agentID,
			Connection: softphone.ConnectionStopped.String(),
			Session:    softphone.SessionInitial.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, eng.State())
}

// callEvent is the SSE payload for softphone events.
type callEvent struct {
	Kind            string `json:"kind"`
	ConnectionState string `json:"connection_state,omitempty"`
	SessionState    string `json:"session_state,omitempty"`
	Generation      uint64 `json:"generation,omitempty"`
	Number          string `json:"number,omitempty"`
	Error           string `json:"error,omitempty"`
}

// handleCallEvents streams softphone events to the operator as
// server-sent events until the client disconnects.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := eng.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			payload := callEvent{
				Kind:       ev.Kind.String(),
				Generation: ev.Generation,
				Number:     ev.Number,
			}
			switch ev.Kind {
			case softphone.EventConnectionState:
				payload.ConnectionState = ev.ConnectionState.String()
			case softphone.EventSessionState:
				payload.SessionState = ev.SessionState.String()
			}
			if ev.Err != nil {
				payload.Error = ev.Err.Error()
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", payload.Kind, data)
			flusher.Flush()
		}
	}
}

type dispositionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type dispositionResponse struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Duration    *int   `json:"duration,omitempty"`
	LeadID      *int64 `json:"lead_id,omitempty"`
}

// handleDisposition files the disposition for the tracked call context.
func (s *Server) handleDisposition(w http.ResponseWriter, r *http.Request) {
	var req dispositionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if !models.ValidDisposition(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid disposition status")
		return
	}
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	log, err := eng.SubmitDisposition(r.Context(), req.Status, req.Notes)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispositionResponse{
		ID:          log.ID,
		PhoneNumber: log.PhoneNumber,
		Direction:   log.Direction,
		Status:      log.Status,
		Duration:    log.Duration,
		LeadID:      log.LeadID,
	})
}

// handleDismiss drops the tracked call context without filing anything.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	eng := s.engineFor(w, r)
	if eng == nil {
		return
	}
	eng.ClearContext()
	writeJSON(w, http.StatusOK, eng.State())
}
