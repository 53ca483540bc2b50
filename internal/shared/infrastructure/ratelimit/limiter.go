// Package ratelimit provides sliding-window limiters keyed by bucket and key.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBucketAndKeyRequired is returned when a call omits the bucket or key.
var ErrBucketAndKeyRequired = errors.New("bucket and key required")

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimit applies to buckets with no configured limit and no "default" entry.
var DefaultLimit = Limit{Limit: 100, Window: time.Minute}

// Limiter decides whether another event in a bucket is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

func lookup(limits map[string]Limit, bucket string) Limit {
	if v, ok := limits[bucket]; ok {
		return v
	}
	if v, ok := limits["default"]; ok {
		return v
	}
	return DefaultLimit
}

func limitKey(bucket, key string) string {
	return key + ":" + bucket
}
