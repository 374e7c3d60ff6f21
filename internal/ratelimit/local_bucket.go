package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const localBucketCapacity = 4096

// LocalBucket is the in-process Limiter used when Redis is disabled. Limits
// are per replica.
type LocalBucket struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	now     func() time.Time
}

func NewLocalBucket(idle time.Duration) *LocalBucket {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &LocalBucket{
		buckets: expirable.NewLRU[string, *rate.Limiter](localBucketCapacity, nil, idle),
		now:     time.Now,
	}
}

func (b *LocalBucket) Allow(_ context.Context, key string, r float64, burst int) (*RateLimitResult, error) {
	if err := checkBucket(key, r, burst); err != nil {
		return &RateLimitResult{}, err
	}

	b.mu.Lock()
	limiter, ok := b.buckets.Get(key)
	if !ok || limiter.Limit() != rate.Limit(r) || limiter.Burst() != burst {
		limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	b.buckets.Add(key, limiter)
	b.mu.Unlock()

	now := b.now()
	res := limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return &RateLimitResult{
			Allowed:    false,
			Limit:      burst,
			ResetTime:  now.Add(delay),
			RetryAfter: delay,
		}, nil
	}
	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     burst,
		Remaining: remaining,
		ResetTime: now,
	}, nil
}
