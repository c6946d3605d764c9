package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Detected type hints carried on a RawDetection.
const (
	DetectionPerson  = "person"
	DetectionVehicle = "vehicle"
	DetectionPackage = "package"
	DetectionAnimal  = "animal"
	DetectionRing    = "ring"
	DetectionMotion  = "motion"
	DetectionUnknown = "unknown"
)

// Region is a motion bounding box in normalized [0,1] coordinates.
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CenterX and CenterY locate the region centroid.
func (r Region) CenterX() float64 { return r.X + r.W/2 }
func (r Region) CenterY() float64 { return r.Y + r.H/2 }

// RawDetection is a candidate event prior to AI description. Created by the
// motion detector or a controller push source, consumed exactly once by the
// event queue, never mutated after creation.
type RawDetection struct {
	ID           uuid.UUID `json:"id"`
	CameraID     uuid.UUID `json:"camera_id"`
	Kind         string    `json:"kind"` // person/vehicle/package/animal/ring/motion/unknown
	OccurredAt   time.Time `json:"occurred_at"`
	AreaPercent  float64   `json:"area_pct"`
	Region       *Region   `json:"region,omitempty"`
	AnalysisMode string    `json:"analysis_mode"`
	ClipRef      string    `json:"clip_ref,omitempty"`

	// Frames and Clip are the ephemeral visual payload (JPEG frames, raw
	// clip). They ride along to the AI orchestrator and are never persisted.
	Frames [][]byte `json:"-"`
	Clip   []byte   `json:"-"`
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Insert(ctx context.Context, d *RawDetection) error {
	query := `
		INSERT INTO raw_detections (id, camera_id, kind, occurred_at, area_pct, region, analysis_mode, clip_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var regionRaw []byte
	if d.Region != nil {
		regionRaw, _ = json.Marshal(d.Region)
	}
	_, err := m.DB.ExecContext(ctx, query,
		d.ID, d.CameraID, d.Kind, d.OccurredAt, d.AreaPercent, regionRaw, d.AnalysisMode, d.ClipRef)
	return err
}

// Event is the durable, user-visible record: a RawDetection plus its AI
// description and, once computed, a correlation group id.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	DetectionID    uuid.UUID  `json:"detection_id"`
	CameraID       uuid.UUID  `json:"camera_id"`
	Kind           string     `json:"kind"`
	OccurredAt     time.Time  `json:"occurred_at"`
	Description    *string    `json:"description"`
	Confidence     *float64   `json:"confidence,omitempty"`
	Provider       *string    `json:"provider,omitempty"`
	AnalysisMode   string     `json:"analysis_mode"`
	FallbackReason *string    `json:"fallback_reason,omitempty"`
	CostUSD        float64    `json:"cost_usd"`
	AnalysisFailed bool       `json:"analysis_failed"`
	RetryCount     int        `json:"retry_count"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type EventModel struct {
	DB DBTX
}

func (m EventModel) Insert(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events
			(id, detection_id, camera_id, kind, occurred_at, description, confidence,
			 provider, analysis_mode, fallback_reason, cost_usd, analysis_failed, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	return m.DB.QueryRowContext(ctx, query,
		e.ID, e.DetectionID, e.CameraID, e.Kind, e.OccurredAt, e.Description, e.Confidence,
		e.Provider, e.AnalysisMode, e.FallbackReason, e.CostUSD, e.AnalysisFailed, e.RetryCount,
	).Scan(&e.CreatedAt)
}

func (m EventModel) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	query := `
		SELECT id, detection_id, camera_id, kind, occurred_at, description, confidence,
		       provider, analysis_mode, fallback_reason, cost_usd, analysis_failed, retry_count,
		       group_id, created_at
		FROM events
		WHERE id = $1`

	e, err := scanEvent(m.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return e, err
}

// ListWindow returns events with occurred_at inside [from, to], oldest first.
// Used by the correlation engine for window lookups.
func (m EventModel) ListWindow(ctx context.Context, from, to time.Time) ([]*Event, error) {
	query := `
		SELECT id, detection_id, camera_id, kind, occurred_at, description, confidence,
		       provider, analysis_mode, fallback_reason, cost_usd, analysis_failed, retry_count,
		       group_id, created_at
		FROM events
		WHERE occurred_at >= $1 AND occurred_at <= $2
		ORDER BY occurred_at`

	rows, err := m.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AssignGroup sets the correlation group once. The WHERE guard makes the
// assignment idempotent and monotonic: an already-grouped event is left
// untouched. Returns true if the row was updated.
func (m EventModel) AssignGroup(ctx context.Context, eventID, groupID uuid.UUID) (bool, error) {
	query := `
		UPDATE events SET group_id = $2
		WHERE id = $1 AND group_id IS NULL`

	res, err := m.DB.ExecContext(ctx, query, eventID, groupID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClaimRetry bumps the retry counter if the event still has budget left.
// The guard makes the per-event cap atomic: of two concurrent re-analysis
// requests racing for the last slot, exactly one claims it.
func (m EventModel) ClaimRetry(ctx context.Context, eventID uuid.UUID, max int) (bool, error) {
	query := `
		UPDATE events SET retry_count = retry_count + 1
		WHERE id = $1 AND retry_count < $2`

	res, err := m.DB.ExecContext(ctx, query, eventID, max)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateAnalysis overwrites the AI description fields after a manual
// re-analysis. The retry counter is owned by ClaimRetry and left alone here.
func (m EventModel) UpdateAnalysis(ctx context.Context, e *Event) error {
	query := `
		UPDATE events
		SET description = $2, confidence = $3, provider = $4, fallback_reason = $5,
		    cost_usd = cost_usd + $6, analysis_failed = $7
		WHERE id = $1`

	res, err := m.DB.ExecContext(ctx, query,
		e.ID, e.Description, e.Confidence, e.Provider, e.FallbackReason,
		e.CostUSD, e.AnalysisFailed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func scanEvent(r rowScanner) (*Event, error) {
	var e Event
	var desc, provider, fallback sql.NullString
	var conf sql.NullFloat64
	var group sql.Null[uuid.UUID]

	err := r.Scan(&e.ID, &e.DetectionID, &e.CameraID, &e.Kind, &e.OccurredAt, &desc, &conf,
		&provider, &e.AnalysisMode, &fallback, &e.CostUSD, &e.AnalysisFailed, &e.RetryCount,
		&group, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		e.Description = &desc.String
	}
	if conf.Valid {
		e.Confidence = &conf.Float64
	}
	if provider.Valid {
		e.Provider = &provider.String
	}
	if fallback.Valid {
		e.FallbackReason = &fallback.String
	}
	if group.Valid {
		e.GroupID = &group.V
	}
	return &e, nil
}

// CorrelationGroup links events from different cameras inside a shared time
// window. Membership is monotonic: events join, never leave.
type CorrelationGroup struct {
	ID           uuid.UUID `json:"id"`
	FirstEventAt time.Time `json:"first_event_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type GroupModel struct {
	DB DBTX
}

func (m GroupModel) Insert(ctx context.Context, g *CorrelationGroup) error {
	query := `
		INSERT INTO correlation_groups (id, first_event_at)
		VALUES ($1, $2)
		RETURNING created_at`

	return m.DB.QueryRowContext(ctx, query, g.ID, g.FirstEventAt).Scan(&g.CreatedAt)
}

func (m GroupModel) GetByID(ctx context.Context, id uuid.UUID) (*CorrelationGroup, error) {
	query := `
		SELECT id, first_event_at, created_at
		FROM correlation_groups
		WHERE id = $1`

	var g CorrelationGroup
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.FirstEventAt, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	return &g, nil
}
