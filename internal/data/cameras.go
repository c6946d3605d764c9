package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Camera source kinds.
const (
	SourceRTSP       = "rtsp"
	SourceUSB        = "usb"
	SourceController = "controller"
)

// Camera status values surfaced to clients.
const (
	CameraStatusOnline     = "online"
	CameraStatusOffline    = "offline"
	CameraStatusConnecting = "connecting"
)

// Point is a polygon vertex in normalized [0,1] coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Zone is a detection zone polygon. Motion outside every enabled zone
// is ignored when at least one zone is configured.
type Zone struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Points  []Point `json:"points"`
}

// Schedule bounds detection to a daily time window. Start/End are
// "HH:MM" local time; a window may cross midnight. Empty Days means
// every day.
type Schedule struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  []int  `json:"days,omitempty"` // time.Weekday values
}

// DetectionConfig is the per-camera detection tuning blob (stored as JSONB).
type DetectionConfig struct {
	Algorithm       string    `json:"algorithm"`     // "mog2", "knn", "diff"
	MinAreaPercent  float64   `json:"min_area_pct"`  // changed-area threshold, 0-100
	SampleFPS       float64   `json:"sample_fps"`    // detector input rate
	CooldownSeconds int       `json:"cooldown_sec"`  // min spacing between detections
	AnalysisMode    string    `json:"analysis_mode"` // single_frame | multi_frame | video_native
	Zones           []Zone    `json:"zones,omitempty"`
	Schedule        *Schedule `json:"schedule,omitempty"`
}

type Camera struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`    // rtsp | usb | controller
	Address    string          `json:"address"` // RTSP URL, device index, or controller WS URL
	Enabled    bool            `json:"enabled"`
	Status     string          `json:"status"`
	Detection  DetectionConfig `json:"detection"`
	LastSeenAt *time.Time      `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CameraModel struct {
	DB DBTX
}

func (m CameraModel) ListEnabled(ctx context.Context) ([]*Camera, error) {
	query := `
		SELECT id, name, kind, address, enabled, status, detection, last_seen_at, created_at
		FROM cameras
		WHERE enabled = true
		ORDER BY created_at`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cams []*Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cams = append(cams, c)
	}
	return cams, rows.Err()
}

func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	query := `
		SELECT id, name, kind, address, enabled, status, detection, last_seen_at, created_at
		FROM cameras
		WHERE id = $1`

	row := m.DB.QueryRowContext(ctx, query, id)
	c, err := scanCamera(row)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return c, err
}

// UpdateStatus records a camera status transition and bumps last_seen_at
// when the camera is online.
func (m CameraModel) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE cameras
		SET status = $2,
		    last_seen_at = CASE WHEN $2 = 'online' THEN now() ELSE last_seen_at END
		WHERE id = $1`

	res, err := m.DB.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(r rowScanner) (*Camera, error) {
	var c Camera
	var detRaw []byte
	var lastSeen sql.NullTime

	err := r.Scan(&c.ID, &c.Name, &c.Kind, &c.Address, &c.Enabled, &c.Status, &detRaw, &lastSeen, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(detRaw) > 0 {
		if err := json.Unmarshal(detRaw, &c.Detection); err != nil {
			return nil, fmt.Errorf("camera %s: bad detection config: %w", c.ID, err)
		}
	}
	if lastSeen.Valid {
		c.LastSeenAt = &lastSeen.Time
	}
	return &c, nil
}
