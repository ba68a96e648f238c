package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/facegate/internal/engine"
)

// IdentifyHandler handles identification requests.
type IdentifyHandler struct {
	engine DecisionEngine
}

// NewIdentifyHandler creates a new identification handler.
func NewIdentifyHandler(eng DecisionEngine) *IdentifyHandler {
	return &IdentifyHandler{engine: eng}
}

type identifyResponse struct {
	AttemptID  string  `json:"attempt_id"`
	Found      bool    `json:"found"`
	Identity   int64   `json:"identity,omitempty"`
	Name       string  `json:"name,omitempty"`
	Confidence int     `json:"confidence"`
	Backend    string  `json:"backend"`
	Processed  int     `json:"processed"`
	Votes      int     `json:"votes"`
	VoteShare  float64 `json:"vote_share"`
}

// Identify runs one identification attempt over a multipart frame batch.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	frames, err := readFrames(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Identify(r.Context(), frames)
	if errors.Is(err, engine.ErrModelUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "no trained model available")
		return
	}
	if err != nil {
		log.Printf("[WEB] identification attempt %s failed: %v", sanitizeForLog(res.AttemptID), err)
		respondError(w, http.StatusInternalServerError, "identification failed")
		return
	}

	respondJSON(w, http.StatusOK, identifyResponse{
		AttemptID:  res.AttemptID,
		Found:      res.Decision.Found,
		Identity:   res.Decision.Identity,
		Name:       res.Name,
		Confidence: res.Decision.Confidence,
		Backend:    res.Backend,
		Processed:  res.Decision.Processed,
		Votes:      res.Decision.Votes,
		VoteShare:  res.Decision.Share,
	})
}
