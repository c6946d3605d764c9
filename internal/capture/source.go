package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
)

// ErrConnection marks unreachable/auth failures on Open. The manager retries
// these with backoff; anything else is treated as a configuration problem.
var ErrConnection = errors.New("camera connection failed")

// Frame is one decoded image from a camera. Ephemeral: it is owned by the
// pipeline stage currently holding it and is never persisted.
type Frame struct {
	CameraID   uuid.UUID
	CapturedAt time.Time
	Image      image.Image
	JPEG       []byte
}

// StatusChange is the camera-status signal consumed by the realtime
// broadcaster and the persistence collaborator.
type StatusChange struct {
	CameraID uuid.UUID
	Status   string
	Reason   string
	At       time.Time
}

// Source is one camera's live acquisition session. Poll-based sources
// produce Frames; push-based controller sources produce RawDetections
// directly. Both channels close when the session dies; re-Opening resumes
// production (restartable, not rewindable).
type Source interface {
	Open(ctx context.Context) error
	Frames() <-chan Frame
	Events() <-chan data.RawDetection
	Close() error
}

// SourceFactory builds a Source for a camera. Injected into the Manager so
// tests can substitute fakes.
type SourceFactory func(cam *data.Camera) (Source, error)

// NewSource is the default factory covering all supported source kinds.
func NewSource(cam *data.Camera) (Source, error) {
	switch cam.Kind {
	case data.SourceRTSP, data.SourceUSB:
		return NewDeviceSource(cam), nil
	case data.SourceController:
		return NewControllerSource(cam), nil
	default:
		return nil, errors.New("unknown source kind: " + cam.Kind)
	}
}
