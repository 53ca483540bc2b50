package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

// DefaultSendTimeout bounds each sink delivery.
const DefaultSendTimeout = 10 * time.Second

// Dispatcher journals alerts and fans them out to sinks in the background.
type Dispatcher struct {
	sinks       []domain.Sink
	journal     domain.Repository
	metrics     observability.Metrics
	logger      *slog.Logger
	sendTimeout time.Duration

	wg sync.WaitGroup
}

var _ domain.Notifier = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithJournal appends every alert to the repository.
func WithJournal(repo domain.Repository) DispatcherOption {
	return func(d *Dispatcher) { d.journal = repo }
}

// WithMetrics records delivery counters.
func WithMetrics(m observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSendTimeout overrides the per-sink delivery timeout.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.sendTimeout = timeout }
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks []domain.Sink, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sinks:       sinks,
		metrics:     observability.NoopMetrics{},
		logger:      logger,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify hands the alert to every sink asynchronously. Failures are logged only.
func (d *Dispatcher) Notify(ctx context.Context, alert domain.Alert) {
	ctx = context.WithoutCancel(ctx)

	if d.journal != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()
			if err := d.journal.Append(sendCtx, alert); err != nil {
				d.logger.Warn("failed to journal alert",
					"alert_id", alert.ID,
					"kind", alert.Kind,
					"error", err,
				)
			}
		}()
	}

	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink domain.Sink) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()

			if err := sink.Send(sendCtx, alert); err != nil {
				d.metrics.Counter(observability.MetricAlertsFailed, 1, observability.T("sink", sink.Name()))
				d.logger.Warn("failed to deliver alert",
					"sink", sink.Name(),
					"alert_id", alert.ID,
					"kind", alert.Kind,
					"error", err,
				)
				return
			}
			d.metrics.Counter(observability.MetricAlertsSent, 1, observability.T("sink", sink.Name()))
		}(sink)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, alert domain.Alert) error {
	level := slog.LevelInfo
	switch alert.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "operator alert",
		"alert_id", alert.ID,
		"kind", alert.Kind,
		"severity", alert.Severity,
		"message", alert.Message,
	)
	return nil
}
