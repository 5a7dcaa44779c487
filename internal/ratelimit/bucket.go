package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketKey      = errors.New("rate limit key is empty")
	ErrBucketReply    = errors.New("unexpected rate limit script reply")
	errNotConfigured  = errors.New("rate limiter not configured")
	errNonPositiveArg = errors.New("rate and burst must be positive")
)

// refillScript keeps {tokens, ts} in a hash and refills it from the
// server clock so every caller sees the same time. Reply: {allowed,
// tokens*1000, ts_ms}; tokens are scaled because Redis truncates Lua
// numbers to integers.
const refillScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, math.floor(tokens * 1000), now}
`

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	At         time.Time
}

// Bucket is a Redis token bucket shared by every replica.
type Bucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewBucket(client redis.Scripter) *Bucket {
	if client == nil {
		return nil
	}
	return &Bucket{client: client, script: redis.NewScript(refillScript)}
}

// Take consumes one token from key, refilling at rate tokens per second
// up to burst.
func (b *Bucket) Take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	switch {
	case b == nil || b.client == nil:
		return Decision{}, errNotConfigured
	case key == "":
		return Decision{}, ErrBucketKey
	case rate <= 0 || burst <= 0:
		return Decision{}, errNonPositiveArg
	}

	reply, err := b.script.Run(ctx, b.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, ErrBucketReply
	}

	allowed, okAllowed := replyInt(reply[0])
	milliTokens, okTokens := replyInt(reply[1])
	nowMs, okNow := replyInt(reply[2])
	if !okAllowed || !okTokens || !okNow {
		return Decision{}, ErrBucketReply
	}

	tokens := float64(milliTokens) / 1000
	d := Decision{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: int(tokens),
		At:        time.UnixMilli(nowMs),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return d, nil
}

// bucketTTL lets an idle bucket expire after twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func replyInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
