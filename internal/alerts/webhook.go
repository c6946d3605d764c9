package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

type attemptStore interface {
	Insert(ctx context.Context, a *data.WebhookDeliveryAttempt) error
}

// WebhookDispatcher retries delivery a bounded number of times and records
// every attempt. Delivery failure never rolls back the rule trigger.
type WebhookDispatcher struct {
	client     *http.Client
	attempts   attemptStore
	maxRetries int
	retryDelay time.Duration
}

type webhookRule struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type webhookPayload struct {
	Event       *data.Event `json:"event"`
	Rule        webhookRule `json:"rule"`
	TriggeredAt time.Time   `json:"triggered_at"`
}

func NewWebhookDispatcher(attempts attemptStore, maxRetries int, retryDelay time.Duration) *WebhookDispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &WebhookDispatcher{
		client:     &http.Client{Timeout: 10 * time.Second},
		attempts:   attempts,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, rule *data.AlertRule, evt *data.Event) {
	body, err := json.Marshal(webhookPayload{
		Event:       evt,
		Rule:        webhookRule{ID: rule.ID, Name: rule.Name},
		TriggeredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[ERROR] Webhook: payload for rule %s: %v", rule.ID, err)
		return
	}

	url := rule.Actions.WebhookURL
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		rec := &data.WebhookDeliveryAttempt{
			ID:      uuid.New(),
			RuleID:  rule.ID,
			EventID: evt.ID,
			URL:     url,
			Attempt: attempt,
		}

		start := time.Now()
		status, err := d.post(ctx, url, rule.Actions.WebhookHeaders, body)
		rec.LatencyMs = time.Since(start).Milliseconds()
		if status > 0 {
			rec.StatusCode = &status
		}
		if err != nil {
			msg := err.Error()
			rec.Error = &msg
		}
		rec.Success = err == nil && status >= 200 && status < 300

		d.record(rec)

		if rec.Success {
			metrics.WebhookAttemptsTotal.WithLabelValues("success").Inc()
			return
		}
		metrics.WebhookAttemptsTotal.WithLabelValues("failure").Inc()
		log.Printf("[Webhook] rule %s attempt %d/%d failed (status=%d err=%v)",
			rule.ID, attempt, d.maxRetries, status, err)

		if attempt < d.maxRetries {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, headers map[string]string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (d *WebhookDispatcher) record(rec *data.WebhookDeliveryAttempt) {
	if d.attempts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.attempts.Insert(ctx, rec); err != nil {
		log.Printf("[ERROR] Webhook: attempt record: %v", err)
	}
}
