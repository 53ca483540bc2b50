package ratelimit

import (
	"context"
	"sync"

	"k8s.io/utils/clock"
)

type bucketState struct {
	// timestamps holds event times in Unix ms, newest last.
	timestamps []int64
}

// MemoryLimiter is an in-process sliding-window limiter.
// It is the single-node fallback when Redis is not configured.
type MemoryLimiter struct {
	clock  clock.PassiveClock
	limits map[string]Limit

	mu      sync.Mutex
	buckets map[string]*bucketState
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter constructs a limiter with the provided per-bucket limits.
func NewMemoryLimiter(limits map[string]Limit, clk clock.PassiveClock) *MemoryLimiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryLimiter{
		clock:   clk,
		limits:  limits,
		buckets: make(map[string]*bucketState),
	}
}

// Allow records the event and reports true when the bucket has room.
// Denied events are not recorded.
func (l *MemoryLimiter) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, ErrBucketAndKeyRequired
	}

	lim := lookup(l.limits, bucket)
	nowMs := l.clock.Now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	k := limitKey(bucket, key)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[k]
	if !ok {
		b = &bucketState{}
		l.buckets[k] = b
	}

	ts := b.timestamps
	prune := 0
	for prune < len(ts) && ts[prune] <= windowStart {
		prune++
	}
	ts = ts[prune:]

	if len(ts) >= lim.Limit {
		b.timestamps = ts
		return false, nil
	}

	b.timestamps = append(ts, nowMs)
	return true, nil
}
