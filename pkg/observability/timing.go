package observability

import (
	"context"
	"log/slog"
	"time"
)

// Timer measures a single operation.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	metrics   Metrics
}

// StartTimer starts timing operation. logger and metrics may be nil.
func StartTimer(operation string, logger *slog.Logger, metrics Metrics) *Timer {
	return &Timer{
		operation: operation,
		start:     time.Now(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Stop records the duration and outcome and returns the duration.
func (t *Timer) Stop(err error) time.Duration {
	d := time.Since(t.start)

	if t.logger != nil {
		if err != nil {
			t.logger.Error("operation failed",
				OperationKey, t.operation,
				DurationKey, d.Milliseconds(),
				ErrorKey, err.Error(),
			)
		} else {
			t.logger.Info("operation completed",
				OperationKey, t.operation,
				DurationKey, d.Milliseconds(),
			)
		}
	}

	if t.metrics != nil {
		tag := T("operation", t.operation)
		t.metrics.Timing(MetricOperationDuration, d, tag)
		t.metrics.Counter(MetricOperationTotal, 1, tag)
		if err != nil {
			t.metrics.Counter(MetricOperationErrors, 1, tag)
		}
	}
	return d
}

// TimeOperation runs fn and records its duration and outcome.
func TimeOperation(ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() error) error {
	t := StartTimer(operation, logger, metrics)
	err := fn()
	t.Stop(err)
	return err
}
