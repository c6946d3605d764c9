package ai

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentryview/sentryview/internal/metrics"
)

// CapConfig bounds a provider's spend. Zero means unlimited.
type CapConfig struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// CostLedger accounts provider spend in redis so caps survive restarts and
// are shared across workers. Charges are recorded per call regardless of
// call success.
type CostLedger struct {
	rdb  *redis.Client
	caps map[string]CapConfig
	now  func() time.Time
}

func NewCostLedger(rdb *redis.Client, caps map[string]CapConfig) *CostLedger {
	return &CostLedger{rdb: rdb, caps: caps, now: time.Now}
}

func (l *CostLedger) dayKey(provider string, t time.Time) string {
	return fmt.Sprintf("ai:cost:%s:day:%s", provider, t.Format("2006-01-02"))
}

func (l *CostLedger) monthKey(provider string, t time.Time) string {
	return fmt.Sprintf("ai:cost:%s:month:%s", provider, t.Format("2006-01"))
}

// Charge records one call's cost against the daily and monthly counters.
func (l *CostLedger) Charge(ctx context.Context, provider string, cost float64) error {
	metrics.ProviderCostUSD.WithLabelValues(provider).Add(cost)
	if cost <= 0 || l.rdb == nil {
		return nil
	}

	t := l.now()
	pipe := l.rdb.Pipeline()
	pipe.IncrByFloat(ctx, l.dayKey(provider, t), cost)
	pipe.Expire(ctx, l.dayKey(provider, t), 48*time.Hour)
	pipe.IncrByFloat(ctx, l.monthKey(provider, t), cost)
	pipe.Expire(ctx, l.monthKey(provider, t), 35*24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// Allowed reports whether a provider is still under its caps. A ledger
// read failure allows the call: availability wins over enforcement, and the
// error is logged for the operator.
func (l *CostLedger) Allowed(ctx context.Context, provider string) bool {
	caps, capped := l.caps[provider]
	if !capped || (caps.DailyUSD <= 0 && caps.MonthlyUSD <= 0) || l.rdb == nil {
		return true
	}

	daily, monthly, err := l.Spent(ctx, provider)
	if err != nil {
		log.Printf("[AI] cost ledger read failed for %s: %v", provider, err)
		return true
	}
	if caps.DailyUSD > 0 && daily >= caps.DailyUSD {
		return false
	}
	if caps.MonthlyUSD > 0 && monthly >= caps.MonthlyUSD {
		return false
	}
	return true
}

// Spent returns the provider's recorded daily and monthly spend.
func (l *CostLedger) Spent(ctx context.Context, provider string) (daily, monthly float64, err error) {
	t := l.now()
	vals, err := l.rdb.MGet(ctx, l.dayKey(provider, t), l.monthKey(provider, t)).Result()
	if err != nil {
		return 0, 0, err
	}
	daily = parseLedgerValue(vals[0])
	monthly = parseLedgerValue(vals[1])
	return daily, monthly, nil
}

func parseLedgerValue(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("[AI] corrupt ledger value %q: %v", s, err)
		return 0
	}
	return f
}
