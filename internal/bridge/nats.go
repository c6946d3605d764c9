package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

// Subjects exposed for external automation consumers (MQTT gateway,
// HomeKit bridge).
const (
	SubjectEventNew     = "sentryview.events.new"
	SubjectAlertFired   = "sentryview.events.alert"
	SubjectCameraStatus = "sentryview.cameras.status"
)

// Publisher mirrors pipeline outcomes onto NATS subjects. Publishing is
// best-effort with a small bounded retry; the pipeline never blocks on it.
type Publisher struct {
	conn       *nats.Conn
	maxRetries int
}

func NewPublisher(conn *nats.Conn, maxRetries int) *Publisher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Publisher{conn: conn, maxRetries: maxRetries}
}

func (p *Publisher) publish(subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, raw)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish to %s failed after %d retries: %w", subject, p.maxRetries, err)
}

func (p *Publisher) EventCreated(evt *data.Event) {
	if err := p.publish(SubjectEventNew, evt); err != nil {
		log.Printf("[ERROR] Bridge: %v", err)
	}
}

func (p *Publisher) AlertTriggered(rule *data.AlertRule, evt *data.Event) {
	payload := map[string]interface{}{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"event":     evt,
	}
	if err := p.publish(SubjectAlertFired, payload); err != nil {
		log.Printf("[ERROR] Bridge: %v", err)
	}
}

func (p *Publisher) CameraStatusChanged(change capture.StatusChange) {
	if err := p.publish(SubjectCameraStatus, change); err != nil {
		log.Printf("[ERROR] Bridge: %v", err)
	}
}
