package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
)

type cameraStore interface {
	ListEnabled(ctx context.Context) ([]*data.Camera, error)
}

// CaptureStatus reports whether a camera has a running capture session.
type CaptureStatus interface {
	Running(id uuid.UUID) bool
}

type CameraHandler struct {
	Cameras cameraStore
	Capture CaptureStatus
}

// GET /api/v1/cameras
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cams, err := h.Cameras.ListEnabled(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type cameraView struct {
		*data.Camera
		CaptureRunning bool `json:"capture_running"`
	}
	out := make([]cameraView, 0, len(cams))
	for _, c := range cams {
		running := h.Capture != nil && h.Capture.Running(c.ID)
		out = append(out, cameraView{Camera: c, CaptureRunning: running})
	}
	respondJSON(w, http.StatusOK, out)
}
