package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/engine"
)

// DecisionEngine is the part of the engine the web layer needs.
type DecisionEngine interface {
	Enroll(ctx context.Context, identity int64, frames [][]byte) (engine.EnrollResult, error)
	Identify(ctx context.Context, frames [][]byte) (engine.IdentifyResult, error)
	Delete(ctx context.Context, identity int64) (engine.DeleteStats, error)
	Rekey(ctx context.Context, oldKey, newKey int64) (engine.DeleteStats, error)
	Status(ctx context.Context) (engine.Status, error)
}

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readFrames extracts the frame payloads from a multipart request.
func readFrames(r *http.Request) ([][]byte, error) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	files := r.MultipartForm.File["frames"]
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames provided")
	}
	if len(files) > constants.MaxFramesPerRequest {
		return nil, fmt.Errorf("too many frames: %d (max %d)", len(files), constants.MaxFramesPerRequest)
	}

	frames := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readFrame(fh)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

func readFrame(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %s", fh.Filename)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
