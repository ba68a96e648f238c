package handlers

import (
	"log"
	"net/http"
)

// StatusHandler reports the engine state and corpus counts.
type StatusHandler struct {
	engine DecisionEngine
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(eng DecisionEngine) *StatusHandler {
	return &StatusHandler{engine: eng}
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		log.Printf("[WEB] status failed: %v", err)
		respondError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	respondJSON(w, http.StatusOK, st)
}
