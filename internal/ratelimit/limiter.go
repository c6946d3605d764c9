package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision reports the outcome of a single rate-limit check.
type Decision struct {
	Limit      int
	Remaining  int
	RetryAfter int // seconds
	Allowed    bool
}

type Limit struct {
	Rate   int
	Window time.Duration
}

// Limiter counts requests per key in fixed windows backed by Redis.
// A window starts on the first request for a key and expires after
// the configured duration.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Atomic INCR with expiry set only on window creation.
var checkScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// Check records one request against key and reports whether it is within
// the limit. Redis errors are returned to the caller, which decides
// whether to fail open.
func (l *Limiter) Check(ctx context.Context, key string, lim Limit) (*Decision, error) {
	count, err := checkScript.Run(ctx, l.client, []string{"rl:" + key}, lim.Window.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}

	remaining := lim.Rate - count
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Limit:      lim.Rate,
		Remaining:  remaining,
		RetryAfter: int(lim.Window.Seconds()),
		Allowed:    count <= lim.Rate,
	}, nil
}
