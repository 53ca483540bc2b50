package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

func TestScheduler_RegisterRejectsInvalidSchedule(t *testing.T) {
	s := New(nil)

	err := s.Register("health", "every five minutes", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.Stats())
}

func TestScheduler_RegisterDuplicate(t *testing.T) {
	s := New(nil)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register("expiration", "*/30 * * * *", noop))
	err := s.Register("expiration", "@every 1m", noop)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestScheduler_RunRecordsStats(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	s := New(nil, WithMetrics(metrics))

	fail := true
	require.NoError(t, s.Register("restart", "0 3 * * *", func(ctx context.Context) error {
		assert.NotEmpty(t, observability.CorrelationIDFromContext(ctx))
		if fail {
			return errors.New("docker unavailable")
		}
		return nil
	}))

	err := s.Run(context.Background(), "restart")
	assert.EqualError(t, err, "docker unavailable")

	fail = false
	require.NoError(t, s.Run(context.Background(), "restart"))

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "restart", stats[0].Name)
	assert.Equal(t, "0 3 * * *", stats[0].Schedule)
	assert.Equal(t, int64(2), stats[0].Runs)
	assert.Equal(t, int64(1), stats[0].Failures)
	assert.Empty(t, stats[0].LastError)
	assert.False(t, stats[0].LastRun.IsZero())

	tag := observability.T("operation", "job.restart")
	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricOperationTotal, tag))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationErrors, tag))
}

func TestScheduler_RunUnknown(t *testing.T) {
	s := New(nil)
	assert.ErrorIs(t, s.Run(context.Background(), "missing"), ErrUnknownJob)
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(nil, WithJobTimeout(10*time.Millisecond))
	require.NoError(t, s.Register("slow", "@every 1h", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := s.Run(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Register("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.False(t, stats[0].NextRun.IsZero())

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
