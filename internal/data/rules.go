package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Rule type specializations.
const (
	RuleTypeStandard        = "standard"
	RuleTypePackageDelivery = "package_delivery"
)

// RuleConditions is the condition blob stored as JSONB on a rule. Object
// types are OR'd; every other configured field is AND'd with the rest.
type RuleConditions struct {
	ObjectTypes   []string    `json:"object_types,omitempty"` // empty = any
	CameraIDs     []uuid.UUID `json:"camera_ids,omitempty"`   // empty = any camera
	TimeStart     string      `json:"time_start,omitempty"`   // "HH:MM", with TimeEnd
	TimeEnd       string      `json:"time_end,omitempty"`
	Days          []int       `json:"days,omitempty"` // time.Weekday values, empty = all
	MinConfidence float64     `json:"min_confidence,omitempty"`
	Carriers      []string    `json:"carriers,omitempty"` // package_delivery rules only
}

// RuleActions describes what a matched rule does.
type RuleActions struct {
	Notify         bool              `json:"notify"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
}

type AlertRule struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Enabled         bool           `json:"enabled"`
	RuleType        string         `json:"rule_type"`
	Conditions      RuleConditions `json:"conditions"`
	Actions         RuleActions    `json:"actions"`
	CooldownMinutes int            `json:"cooldown_minutes"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	TriggerCount    int            `json:"trigger_count"`
	CreatedAt       time.Time      `json:"created_at"`
}

type AlertRuleModel struct {
	DB DBTX
}

func (m AlertRuleModel) ListEnabled(ctx context.Context) ([]*AlertRule, error) {
	query := `
		SELECT id, name, enabled, rule_type, conditions, actions,
		       cooldown_minutes, last_triggered_at, trigger_count, created_at
		FROM alert_rules
		WHERE enabled = true
		ORDER BY created_at`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// TryTrigger atomically claims a rule firing. The conditional WHERE enforces
// the cooldown in one statement so two workers evaluating the same rule
// concurrently cannot both fire it. Returns true when this caller won.
func (m AlertRuleModel) TryTrigger(ctx context.Context, ruleID uuid.UUID, now time.Time, cooldown time.Duration) (bool, error) {
	query := `
		UPDATE alert_rules
		SET last_triggered_at = $2, trigger_count = trigger_count + 1
		WHERE id = $1
		  AND (last_triggered_at IS NULL OR last_triggered_at <= $3)`

	res, err := m.DB.ExecContext(ctx, query, ruleID, now, now.Add(-cooldown))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanRule(r rowScanner) (*AlertRule, error) {
	var rule AlertRule
	var condRaw, actRaw []byte
	var last sql.NullTime

	err := r.Scan(&rule.ID, &rule.Name, &rule.Enabled, &rule.RuleType, &condRaw, &actRaw,
		&rule.CooldownMinutes, &last, &rule.TriggerCount, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(condRaw) > 0 {
		if err := json.Unmarshal(condRaw, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s: bad conditions: %w", rule.ID, err)
		}
	}
	if len(actRaw) > 0 {
		if err := json.Unmarshal(actRaw, &rule.Actions); err != nil {
			return nil, fmt.Errorf("rule %s: bad actions: %w", rule.ID, err)
		}
	}
	if last.Valid {
		rule.LastTriggeredAt = &last.Time
	}
	return &rule, nil
}

// Notification is the dashboard notification record an alert action inserts.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	RuleID    uuid.UUID `json:"rule_id"`
	EventID   uuid.UUID `json:"event_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationModel struct {
	DB DBTX
}

func (m NotificationModel) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, rule_id, event_id, message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return m.DB.QueryRowContext(ctx, query, n.ID, n.RuleID, n.EventID, n.Message).Scan(&n.CreatedAt)
}

// ListRecent supports the catch-up query of the external API collaborator.
func (m NotificationModel) ListRecent(ctx context.Context, since time.Time, ruleIDs []uuid.UUID) ([]*Notification, error) {
	query := `
		SELECT id, rule_id, event_id, message, created_at
		FROM notifications
		WHERE created_at >= $1
		  AND (cardinality($2::uuid[]) = 0 OR rule_id = ANY($2))
		ORDER BY created_at DESC`

	ids := make([]string, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		ids = append(ids, id.String())
	}
	rows, err := m.DB.QueryContext(ctx, query, since, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RuleID, &n.EventID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
