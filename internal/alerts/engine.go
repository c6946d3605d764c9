package alerts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

type ruleStore interface {
	ListEnabled(ctx context.Context) ([]*data.AlertRule, error)
	TryTrigger(ctx context.Context, ruleID uuid.UUID, now time.Time, cooldown time.Duration) (bool, error)
}

type notificationStore interface {
	Insert(ctx context.Context, n *data.Notification) error
}

// Dispatcher delivers webhook payloads for fired rules.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *data.AlertRule, evt *data.Event)
}

// AlertNotifier receives the realtime signals produced by a fired rule.
type AlertNotifier interface {
	AlertTriggered(rule *data.AlertRule, evt *data.Event)
	NotificationCreated(n *data.Notification)
}

// Engine matches finalized events against the enabled alert rules and runs
// the actions of whichever rules fire.
type Engine struct {
	rules         ruleStore
	notifications notificationStore
	dispatcher    Dispatcher
	notifier      AlertNotifier
	now           func() time.Time
}

func New(rules ruleStore, notifications notificationStore, dispatcher Dispatcher, notifier AlertNotifier) *Engine {
	return &Engine{
		rules:         rules,
		notifications: notifications,
		dispatcher:    dispatcher,
		notifier:      notifier,
		now:           time.Now,
	}
}

// Evaluate runs every enabled rule against evt. Each matching rule fires at
// most once per cooldown; the claim is a conditional database update, so
// concurrent workers cannot double-fire a rule.
func (e *Engine) Evaluate(ctx context.Context, evt *data.Event) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		log.Printf("[ERROR] Alerts: listing rules: %v", err)
		return
	}

	for _, rule := range rules {
		if !ruleMatches(rule, evt) {
			continue
		}

		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		fired, err := e.rules.TryTrigger(ctx, rule.ID, e.now(), cooldown)
		if err != nil {
			log.Printf("[ERROR] Alerts: trigger claim for rule %s: %v", rule.ID, err)
			continue
		}
		if !fired {
			continue
		}

		metrics.AlertsFiredTotal.Inc()
		log.Printf("[Alerts] rule %q fired for event %s", rule.Name, evt.ID)
		e.runActions(ctx, rule, evt)
	}
}

func (e *Engine) runActions(ctx context.Context, rule *data.AlertRule, evt *data.Event) {
	if rule.Actions.Notify {
		n := &data.Notification{
			ID:      uuid.New(),
			RuleID:  rule.ID,
			EventID: evt.ID,
			Message: notificationMessage(rule, evt),
		}
		if err := e.notifications.Insert(ctx, n); err != nil {
			log.Printf("[ERROR] Alerts: notification insert for rule %s: %v", rule.ID, err)
		} else if e.notifier != nil {
			e.notifier.NotificationCreated(n)
		}
	}

	if rule.Actions.WebhookURL != "" && e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, rule, evt)
	}

	if e.notifier != nil {
		e.notifier.AlertTriggered(rule, evt)
	}
}

func notificationMessage(rule *data.AlertRule, evt *data.Event) string {
	if evt.Description != nil && *evt.Description != "" {
		return fmt.Sprintf("%s: %s", rule.Name, *evt.Description)
	}
	return fmt.Sprintf("%s: %s detected", rule.Name, evt.Kind)
}

// ruleMatches applies the rule's conditions to the event. Object types are
// OR'd against the event kind; camera scope, time window, weekday set and
// minimum confidence are each AND'd.
func ruleMatches(rule *data.AlertRule, evt *data.Event) bool {
	c := rule.Conditions

	if rule.RuleType == data.RuleTypePackageDelivery {
		if evt.Kind != data.DetectionPackage {
			return false
		}
		if len(c.Carriers) > 0 && !carrierMatches(c.Carriers, evt) {
			return false
		}
	} else if len(c.ObjectTypes) > 0 && !containsFold(c.ObjectTypes, evt.Kind) {
		return false
	}

	if len(c.CameraIDs) > 0 {
		found := false
		for _, id := range c.CameraIDs {
			if id == evt.CameraID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.MinConfidence > 0 {
		if evt.Confidence == nil || *evt.Confidence < c.MinConfidence {
			return false
		}
	}

	return withinSchedule(c.TimeStart, c.TimeEnd, c.Days, evt.OccurredAt)
}

// carrierMatches checks whether the analysis description names one of the
// configured carriers.
func carrierMatches(carriers []string, evt *data.Event) bool {
	if evt.Description == nil {
		return false
	}
	desc := strings.ToLower(*evt.Description)
	for _, carrier := range carriers {
		if strings.Contains(desc, strings.ToLower(carrier)) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// withinSchedule checks the HH:MM window (handling windows that cross
// midnight) and the weekday set against the event timestamp.
func withinSchedule(start, end string, days []int, at time.Time) bool {
	if len(days) > 0 {
		ok := false
		for _, d := range days {
			if time.Weekday(d) == at.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if start == "" || end == "" {
		return true
	}
	startMin, err := parseClock(start)
	if err != nil {
		return true
	}
	endMin, err := parseClock(end)
	if err != nil {
		return true
	}
	cur := at.Hour()*60 + at.Minute()

	if startMin <= endMin {
		return cur >= startMin && cur < endMin
	}
	// window wraps past midnight
	return cur >= startMin || cur < endMin
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	return h*60 + m, nil
}
