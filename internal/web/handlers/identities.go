package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/store"
)

// IdentitiesHandler handles identity lifecycle endpoints.
type IdentitiesHandler struct {
	engine DecisionEngine
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(eng DecisionEngine) *IdentitiesHandler {
	return &IdentitiesHandler{engine: eng}
}

func identityParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("identity must be a positive integer")
	}
	return id, nil
}

// Delete removes an identity's samples and embeddings and retrains.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.engine.Delete(r.Context(), identity)
	if errors.Is(err, engine.ErrRetrainFailed) {
		log.Printf("[WEB] retrain after deleting identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "model retrain failed")
		return
	}
	if err != nil {
		log.Printf("[WEB] deleting identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identity":   identity,
		"samples":    stats.Samples,
		"embeddings": stats.Embeddings,
	})
}

type rekeyRequest struct {
	NewKey int64 `json:"new_key"`
}

// Rekey moves an identity to a new key and retrains under the new label.
func (h *IdentitiesHandler) Rekey(w http.ResponseWriter, r *http.Request) {
	identity, err := identityParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req rekeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewKey <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.NewKey == identity {
		respondError(w, http.StatusBadRequest, "new key equals the current key")
		return
	}

	stats, err := h.engine.Rekey(r.Context(), identity, req.NewKey)
	if errors.Is(err, store.ErrRekeyConflict) {
		respondError(w, http.StatusConflict, "target identity is already enrolled")
		return
	}
	if errors.Is(err, engine.ErrRetrainFailed) {
		log.Printf("[WEB] retrain after rekeying identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "model retrain failed")
		return
	}
	if err != nil {
		log.Printf("[WEB] rekeying identity %d failed: %v", identity, err)
		respondError(w, http.StatusInternalServerError, "rekey failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identity":   req.NewKey,
		"old_key":    identity,
		"samples":    stats.Samples,
		"embeddings": stats.Embeddings,
	})
}
