package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hashplanet/internal/ratelimit/models"
)

// slidingWindowScript trims the window, then admits the request if there is
// room. Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
	redis.call("ZADD", key, now, member)
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", key, window)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisBucketStore keeps one sorted set per key, scored by request time in
// milliseconds, so replicas share the same window.
type RedisBucketStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisBucketStore.
type RedisOption func(*RedisBucketStore)

// WithRedisPrefix namespaces keys.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisBucketStore) {
		s.prefix = prefix
	}
}

// WithRedisClock replaces time.Now, for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		s.now = now
	}
}

func NewRedis(client redis.Cmdable, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, prefix: "hashplanet", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisBucketStore) key(key string) string {
	return s.prefix + ":ratelimit:" + key
}

// Allow checks if a request is allowed and records it when it is.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	res, err := slidingWindowScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script for %s: %w", key, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script for %s: unexpected reply %v", key, res)
	}

	allowed, count := res[0] == 1, int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(window)
	result := &models.RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		result.RetryAfter = models.RetryAfterSeconds(now, resetAt)
	}
	return result, nil
}

// Reset clears the counter for a key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// GetCurrentCount returns the number of requests inside the window.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	minScore := fmt.Sprintf("(%d", s.now().Add(-window).UnixMilli())
	n, err := s.client.ZCount(ctx, s.key(key), minScore, "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
