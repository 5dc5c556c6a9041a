// Package ratelimit throttles API calls per client with a token bucket,
// evaluated atomically in Redis when available.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])
if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

tokens = math.min(capacity, tokens + math.max(0, now - updated_at) * rate)

local allowed = 0
local retry_after = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_after = (1 - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, math.ceil(capacity / rate) + 60)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`

// Redis keeps one bucket per key in a Redis hash. Capacity is twice the
// per-second rate.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
	qps    float64
	burst  int
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, qps float64) *Redis {
	if prefix == "" {
		prefix = "rate_limit:"
	}
	return &Redis{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		prefix: prefix,
		qps:    qps,
		burst:  burstFor(qps),
		now:    time.Now,
	}
}

func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, l.burst, l.qps, now).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	arr, ok := res.([]any)
	if !ok || len(arr) < 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %T", res)
	}
	d := Decision{Limit: l.burst}
	if v, ok := arr[0].(int64); ok {
		d.Allowed = v == 1
	}
	if v, ok := arr[1].(int64); ok {
		d.Remaining = int(v)
	}
	if v, ok := arr[2].(int64); ok {
		d.RetryAfter = time.Duration(v) * time.Second
	}
	return d, nil
}

// Memory is the in-process equivalent used when no Redis is configured.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	qps     float64
	burst   int
}

func NewMemory(qps float64) *Memory {
	return &Memory{buckets: make(map[string]*rate.Limiter), qps: qps, burst: burstFor(qps)}
}

func (l *Memory) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.qps), l.burst)
		l.buckets[key] = lim
	}
	l.mu.Unlock()

	d := Decision{Limit: l.burst, Allowed: lim.Allow()}
	d.Remaining = int(math.Max(0, math.Floor(lim.Tokens())))
	if !d.Allowed {
		d.RetryAfter = time.Duration(math.Ceil(1/l.qps)) * time.Second
	}
	return d, nil
}

func burstFor(qps float64) int {
	b := int(math.Ceil(2 * qps))
	if b < 1 {
		b = 1
	}
	return b
}
