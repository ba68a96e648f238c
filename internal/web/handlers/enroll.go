package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/kozaktomas/facegate/internal/backend"
	"github.com/kozaktomas/facegate/internal/engine"
)

// EnrollHandler handles enrollment requests.
type EnrollHandler struct {
	engine DecisionEngine
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(eng DecisionEngine) *EnrollHandler {
	return &EnrollHandler{engine: eng}
}

type enrollResponse struct {
	Enrolled    bool  `json:"enrolled"`
	Identity    int64 `json:"identity"`
	Accepted    int   `json:"accepted"`
	Synthesized int   `json:"synthesized"`
	Total       int   `json:"total"`
	Embeddings  int   `json:"embeddings"`
}

// Enroll accepts a multipart batch of frames for one identity. When no
// frame passes the quality gate, the response carries enrolled=false so
// the caller can delete the identity record it created speculatively.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identityStr := r.FormValue("identity")
	identity, err := strconv.ParseInt(identityStr, 10, 64)
	if err != nil || identity <= 0 {
		respondError(w, http.StatusBadRequest, "identity must be a positive integer")
		return
	}

	frames, err := readFrames(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Enroll(r.Context(), identity, frames)
	if errors.Is(err, engine.ErrInsufficientQuality) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"enrolled": false,
			"identity": identity,
			"error":    "no frame passed the quality gate",
		})
		return
	}
	if errors.Is(err, backend.ErrInsufficientEmbeddings) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"enrolled": false,
			"identity": identity,
			"error":    "too few embeddings produced, batch rolled back",
		})
		return
	}
	if errors.Is(err, engine.ErrRetrainFailed) {
		log.Printf("[WEB] enrollment retrain for identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "model retrain failed")
		return
	}
	if err != nil {
		log.Printf("[WEB] enrollment for identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}

	respondJSON(w, http.StatusOK, enrollResponse{
		Enrolled:    true,
		Identity:    res.Identity,
		Accepted:    res.Accepted,
		Synthesized: res.Synthesized,
		Total:       res.Total,
		Embeddings:  res.Embeddings,
	})
}
