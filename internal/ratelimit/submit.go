package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

const keySubmitClient = "ratelimit:submit:"

var ErrInvalidLimit = errors.New("invalid_rate_limit")

// SubmitLimiter throttles invoice submissions per client key. A nil
// limiter allows everything.
type SubmitLimiter struct {
	bucket *Bucket
	prefix string
	rate   float64
	burst  int
}

func NewSubmitLimiter(client redis.Scripter, prefix string, rate float64, burst int) (*SubmitLimiter, error) {
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix != "" {
		prefix += ":"
	}
	return &SubmitLimiter{
		bucket: NewBucket(client),
		prefix: prefix,
		rate:   rate,
		burst:  burst,
	}, nil
}

func (l *SubmitLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for client.
func (l *SubmitLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "anonymous"
	}
	return l.bucket.Take(ctx, l.prefix+keySubmitClient+client, l.rate, l.burst)
}
