package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WebhookDeliveryAttempt is one dispatch try. Immutable once written; used
// for failure-isolation accounting and never rolled back.
type WebhookDeliveryAttempt struct {
	ID         uuid.UUID `json:"id"`
	RuleID     uuid.UUID `json:"rule_id"`
	EventID    uuid.UUID `json:"event_id"`
	URL        string    `json:"url"`
	Attempt    int       `json:"attempt"` // 1-based
	StatusCode *int      `json:"status_code,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Success    bool      `json:"success"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type WebhookAttemptModel struct {
	DB DBTX
}

func (m WebhookAttemptModel) Insert(ctx context.Context, a *WebhookDeliveryAttempt) error {
	query := `
		INSERT INTO webhook_delivery_attempts
			(id, rule_id, event_id, url, attempt, status_code, latency_ms, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return m.DB.QueryRowContext(ctx, query,
		a.ID, a.RuleID, a.EventID, a.URL, a.Attempt, a.StatusCode, a.LatencyMs, a.Success, a.Error,
	).Scan(&a.CreatedAt)
}
