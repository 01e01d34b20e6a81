package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/yurib/scribeline/internal/session"
	"github.com/yurib/scribeline/internal/websocket"
	"github.com/yurib/scribeline/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	orchestrator *session.Orchestrator
	wsServer     *websocket.Server
	logger       *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(orchestrator *session.Orchestrator, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		wsServer:     wsServer,
		logger:       log.Named("api-handler"),
	}
}

// controlResponse is the shape of every session control reply
type controlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StartSession starts a new capture session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.StartConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		WriteJSON(w, http.StatusBadRequest, controlResponse{Error: "invalid request body"})
		return
	}

	if err := h.orchestrator.Start(cfg); err != nil {
		h.logger.Error("Failed to start session", logger.Error(err))
		WriteJSON(w, statusForControlError(err), controlResponse{Error: err.Error()})
		return
	}

	WriteJSON(w, http.StatusOK, controlResponse{Success: true})
}

// StopSession stops the active session
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Stop(); err != nil {
		WriteJSON(w, statusForControlError(err), controlResponse{Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, controlResponse{Success: true})
}

// PauseSession pauses the active session
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Pause(); err != nil {
		WriteJSON(w, statusForControlError(err), controlResponse{Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, controlResponse{Success: true})
}

// ResumeSession resumes a paused session
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Resume(); err != nil {
		WriteJSON(w, statusForControlError(err), controlResponse{Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, controlResponse{Success: true})
}

// GetSession returns the current session snapshot
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// GetTranscripts returns transcript entries with pagination
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	transcripts, err := h.orchestrator.Transcripts(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"timestamp":   time.Now(),
		"count":       len(transcripts),
		"transcripts": transcripts,
	}

	WriteJSON(w, http.StatusOK, response)
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// statusForControlError maps lifecycle errors to HTTP status codes
func statusForControlError(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrNotPaused):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// parsePaginationParams parses limit and offset query parameters
func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
