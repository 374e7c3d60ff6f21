package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Buckets are kept in thousandths of a token so slow rates (one attempt every
// ten seconds) refill exactly. The script returns allowed, the remaining
// thousandths and the wait in milliseconds until the next whole token.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "ts")
local milli = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
if now > ts then
  milli = math.min(capacity, milli + math.floor((now - ts) * rate))
end

local allowed = 0
local wait = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
else
  wait = math.ceil((1000 - milli) / rate)
end

redis.call("HSET", KEYS[1], "milli", milli, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, milli, wait}
`

var ErrLimiterNotConfigured = errors.New("rate limiter not configured")

// Limiter decides whether one more attempt for key fits the rate.
type Limiter interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket is a Redis token bucket shared by every replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	now    func() time.Time
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, r float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return &RateLimitResult{}, ErrLimiterNotConfigured
	}
	if err := checkBucket(key, r, burst); err != nil {
		return &RateLimitResult{}, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(r, 'f', -1, 64),
		burst,
		bucketTTL(r, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{}, err
	}
	if len(reply) != 3 {
		return &RateLimitResult{}, fmt.Errorf("token bucket: unexpected reply of %d values", len(reply))
	}

	wait := time.Duration(reply[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[1] / 1000),
		ResetTime:  t.now().Add(wait),
		RetryAfter: wait,
	}, nil
}

func checkBucket(key string, r float64, burst int) error {
	if key == "" {
		return errors.New("rate limiter key is empty")
	}
	if r <= 0 || burst <= 0 {
		return fmt.Errorf("rate limiter rate %v burst %d must be positive", r, burst)
	}
	return nil
}

// bucketTTL keeps an idle bucket for twice the time it takes to refill.
func bucketTTL(r float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / r * 2)
	return time.Duration(max(seconds, 1)) * time.Second
}
